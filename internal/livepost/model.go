package livepost

import "time"

type BlockKind string

const (
	KindText  BlockKind = "text"
	KindImage BlockKind = "image"
	KindEmbed BlockKind = "embed"
)

// Image describes a stored image referenced by an image block.
type Image struct {
	Title    string `json:"title"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Block is one content element of a live post. Exactly one of Text, URL or
// Image is meaningful, selected by Kind.
type Block struct {
	ID    string    `json:"id"`
	Kind  BlockKind `json:"kind"`
	Text  string    `json:"text,omitempty"`
	URL   string    `json:"url,omitempty"`
	Image *Image    `json:"image,omitempty"`
}

func TextBlock(text string) Block { return Block{Kind: KindText, Text: text} }
func EmbedBlock(url string) Block { return Block{Kind: KindEmbed, URL: url} }
func ImageBlock(img Image) Block  { return Block{Kind: KindImage, Image: &img} }

// SameValue reports whether two blocks carry the same content, ignoring ids.
func (b Block) SameValue(o Block) bool {
	if b.Kind != o.Kind {
		return false
	}
	switch b.Kind {
	case KindText:
		return b.Text == o.Text
	case KindEmbed:
		return b.URL == o.URL
	case KindImage:
		if b.Image == nil || o.Image == nil {
			return b.Image == o.Image
		}
		return *b.Image == *o.Image
	}
	return false
}

func (b Block) clone() Block {
	if b.Image != nil {
		img := *b.Image
		b.Image = &img
	}
	return b
}

// Post is a single live post on a page.
type Post struct {
	ID         string     `json:"id"`
	MessageID  string     `json:"message_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
	Visible    bool       `json:"visible"`
	Content    []Block    `json:"content"`
}

// Clone returns a deep copy safe to hand to readers outside the page lock.
func (p *Post) Clone() *Post {
	cp := *p
	if p.ModifiedAt != nil {
		m := *p.ModifiedAt
		cp.ModifiedAt = &m
	}
	cp.Content = make([]Block, len(p.Content))
	for i, b := range p.Content {
		cp.Content[i] = b.clone()
	}
	return &cp
}

// ChangedSince reports whether the post was created or edited after t.
func (p *Post) ChangedSince(t time.Time) bool {
	if p.CreatedAt.After(t) {
		return true
	}
	return p.ModifiedAt != nil && p.ModifiedAt.After(t)
}
