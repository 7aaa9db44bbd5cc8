package models

// DealItem is one upstream listing from the smzdm feed. Identity is the
// upstream article ID: two items are the same deal iff their IDs are equal,
// and the ID is the sole key for dedup, upsert and push-history membership.
type DealItem struct {
	ID          string `gorm:"column:article_id;primaryKey" json:"article_id" validate:"required"`
	Title       string `gorm:"column:title;not null;check:chk_title_nonempty,title <> ''" json:"title" validate:"required"`
	URL         string `gorm:"column:url;not null" json:"url" validate:"required,url"`
	PictureURL  string `gorm:"column:article_pic_url" json:"pic_url,omitempty" validate:"omitempty,url"`
	Price       string `gorm:"column:price" json:"price,omitempty"`
	Votes       int    `gorm:"column:voted;default:0" json:"voted" validate:"gte=0"`
	Comments    int    `gorm:"column:comments;default:0" json:"comments" validate:"gte=0"`
	Merchant    string `gorm:"column:article_mall" json:"article_mall,omitempty"`
	PublishedAt string `gorm:"column:article_time" json:"article_time,omitempty"`
	Pushed      bool   `gorm:"column:pushed;default:false" json:"pushed"`
}

// TableName keeps the table named after the upstream feed.
func (DealItem) TableName() string {
	return "zdm_deals"
}

