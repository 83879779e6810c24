package content

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. PasswordHash is never serialized.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           Role       `bun:"user_role,notnull" json:"role,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Nickname       string     `bun:"nickname,notnull" json:"nickname,omitempty"`
	AvatarURL      string     `bun:"avatar_url" json:"avatar_url,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	EmailVerified  bool       `bun:"is_email_verified" json:"is_email_verified"`
	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// Article is the content model. Premium articles carry a price and their body
// is only served to buyers, the author, and managers.
type Article struct {
	bun.BaseModel `bun:"table:articles,alias:art"`

	ID         uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AuthorID   uuid.UUID  `bun:"author_id,notnull,type:uuid" json:"author_id,omitempty"`
	Author     *User      `bun:"rel:belongs-to,join:author_id=id" json:"author,omitempty"`
	Title      string     `bun:"title,notnull" json:"title,omitempty"`
	Slug       string     `bun:"slug,notnull,unique" json:"slug,omitempty"`
	Body       string     `bun:"body" json:"body,omitempty"`
	Premium    bool       `bun:"is_premium" json:"is_premium"`
	PriceCents int64      `bun:"price_cents" json:"price_cents,omitempty"`
	Published  bool       `bun:"is_published" json:"is_published"`
	CreatedAt  *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt  *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt  *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// OrderStatus is the purchase lifecycle state.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order records a purchase of a premium article.
type Order struct {
	bun.BaseModel `bun:"table:orders,alias:ord"`

	ID          uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID      uuid.UUID   `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User        *User       `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	ArticleID   uuid.UUID   `bun:"article_id,notnull,type:uuid" json:"article_id,omitempty"`
	Article     *Article    `bun:"rel:belongs-to,join:article_id=id" json:"article,omitempty"`
	AmountCents int64       `bun:"amount_cents,notnull" json:"amount_cents"`
	Status      OrderStatus `bun:"status,notnull" json:"status,omitempty"`
	PaidAt      *time.Time  `bun:"paid_at,nullzero" json:"paid_at,omitempty"`
	CreatedAt   *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// UserIdentity adapts a User into the Identity interface for token issuance.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

func (u UserIdentity) Nickname() string {
	if u.user == nil {
		return ""
	}
	return u.user.Nickname
}

func (u UserIdentity) Role() string {
	if u.user == nil {
		return ""
	}
	return string(u.user.Role)
}

func (u UserIdentity) EmailVerified() bool {
	return u.user != nil && u.user.EmailVerified
}

var _ Identity = UserIdentity{}
