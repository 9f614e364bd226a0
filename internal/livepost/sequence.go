package livepost

import (
	"errors"
	"fmt"
)

// NotFound is returned by IndexOf when no post carries the message id.
const NotFound = -1

var (
	ErrPostNotFound     = errors.New("live post not found")
	ErrIndexOutOfRange  = errors.New("live post index out of range")
	ErrDuplicateMessage = errors.New("message already has a live post")
)

// Sequence holds the live posts of one page sorted by CreatedAt ascending.
// Posts sharing a CreatedAt keep their insertion order.
//
// Sequence is not safe for concurrent use; the owning page serializes access.
type Sequence struct {
	posts []*Post
}

// NewSequence builds a sequence from posts. It panics if two posts share a
// message id; use RestoreSequence for untrusted input.
func NewSequence(posts ...*Post) *Sequence {
	s, err := RestoreSequence(posts)
	if err != nil {
		panic(err)
	}
	return s
}

// RestoreSequence inserts every post it can. Posts repeating a message id are
// left out and reported in the returned error; the sequence is usable either
// way.
func RestoreSequence(posts []*Post) (*Sequence, error) {
	s := &Sequence{}
	var errs []error
	for _, p := range posts {
		if p == nil {
			continue
		}
		if _, err := s.Insert(p); err != nil {
			errs = append(errs, fmt.Errorf("post %s: %w", p.ID, err))
		}
	}
	return s, errors.Join(errs...)
}

func (s *Sequence) Len() int { return len(s.posts) }

// IndexOf scans backwards since edits and deletes cluster around recent posts.
func (s *Sequence) IndexOf(messageID string) int {
	for i := len(s.posts) - 1; i >= 0; i-- {
		if s.posts[i].MessageID == messageID {
			return i
		}
	}
	return NotFound
}

func (s *Sequence) indexOfID(postID string) int {
	for i := len(s.posts) - 1; i >= 0; i-- {
		if s.posts[i].ID == postID {
			return i
		}
	}
	return NotFound
}

func (s *Sequence) At(i int) (*Post, error) {
	if i < 0 || i >= len(s.posts) {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrIndexOutOfRange, i, len(s.posts))
	}
	return s.posts[i], nil
}

func (s *Sequence) ByMessageID(messageID string) (*Post, error) {
	i := s.IndexOf(messageID)
	if i == NotFound {
		return nil, fmt.Errorf("%w: message %s", ErrPostNotFound, messageID)
	}
	return s.posts[i], nil
}

func (s *Sequence) ByID(postID string) (*Post, error) {
	i := s.indexOfID(postID)
	if i == NotFound {
		return nil, fmt.Errorf("%w: post %s", ErrPostNotFound, postID)
	}
	return s.posts[i], nil
}

// Insert places post at its CreatedAt position, scanning from the tail, and
// returns the index it landed at.
func (s *Sequence) Insert(post *Post) (int, error) {
	if s.IndexOf(post.MessageID) != NotFound {
		return NotFound, fmt.Errorf("%w: %s", ErrDuplicateMessage, post.MessageID)
	}
	i := len(s.posts)
	for i > 0 && s.posts[i-1].CreatedAt.After(post.CreatedAt) {
		i--
	}
	s.posts = append(s.posts, nil)
	copy(s.posts[i+1:], s.posts[i:])
	s.posts[i] = post
	return i, nil
}

// Remove deletes the post for messageID and returns its post id.
func (s *Sequence) Remove(messageID string) (string, error) {
	i := s.IndexOf(messageID)
	if i == NotFound {
		return "", fmt.Errorf("%w: message %s", ErrPostNotFound, messageID)
	}
	id := s.posts[i].ID
	s.removeAt(i)
	return id, nil
}

func (s *Sequence) RemoveByID(postID string) (*Post, error) {
	i := s.indexOfID(postID)
	if i == NotFound {
		return nil, fmt.Errorf("%w: post %s", ErrPostNotFound, postID)
	}
	p := s.posts[i]
	s.removeAt(i)
	return p, nil
}

func (s *Sequence) removeAt(i int) {
	copy(s.posts[i:], s.posts[i+1:])
	s.posts[len(s.posts)-1] = nil
	s.posts = s.posts[:len(s.posts)-1]
}

// ReplaceContent rewrites the block list of post in place. Blocks identical to
// an old block inherit its id so clients can diff renders.
func (s *Sequence) ReplaceContent(post *Post, blocks []Block) {
	used := make([]bool, len(post.Content))
	out := make([]Block, 0, len(blocks))
	for _, nb := range blocks {
		for j, ob := range post.Content {
			if !used[j] && ob.SameValue(nb) {
				nb.ID = ob.ID
				used[j] = true
				break
			}
		}
		out = append(out, nb)
	}
	post.Content = out
}

// Posts returns deep copies of every post in order.
func (s *Sequence) Posts() []*Post {
	out := make([]*Post, len(s.posts))
	for i, p := range s.posts {
		out[i] = p.Clone()
	}
	return out
}

// Each calls fn for every post in order; fn must not retain p.
func (s *Sequence) Each(fn func(i int, p *Post)) {
	for i, p := range s.posts {
		fn(i, p)
	}
}
