package workflow

import "github.com/driftpost/driftpost/internal/providers"

// Context is the shared accumulator for one run. Stages only add fields,
// never remove ones set by earlier stages; any stage may read fields set
// by any earlier stage. It is created empty at run start and discarded at
// run end, never persisted.
type Context struct {
	Topic          string                     `json:"topic,omitempty"`
	ReferenceImage string                     `json:"reference_image,omitempty"`
	AuthToken      string                     `json:"-"`
	Research       *providers.ResearchResult  `json:"research,omitempty"`
	Post           *providers.ComposedPost    `json:"post,omitempty"`
	Images         []providers.GeneratedImage `json:"images,omitempty"`

	// Authenticated mirrors AuthToken presence for serialized snapshots
	// without leaking the credential itself.
	Authenticated bool `json:"authenticated,omitempty"`
}

// Snapshot returns a copy safe to hand out as a stage output. The nested
// results are treated as immutable once merged, so pointer fields are
// shared; the image slice is copied to pin its length.
func (c *Context) Snapshot() Context {
	snap := *c
	snap.AuthToken = ""
	snap.Authenticated = c.AuthToken != ""
	snap.Images = append([]providers.GeneratedImage(nil), c.Images...)
	return snap
}

// composeSource returns the best available source text for composing,
// preferring the research summary over the raw topic.
func (c *Context) composeSource() string {
	if c.Research != nil && c.Research.Summary != "" {
		return c.Research.Summary
	}
	return c.Topic
}

// imagePrompt returns the best available image prompt, preferring the
// composed post's prompt over the raw topic.
func (c *Context) imagePrompt() string {
	if c.Post != nil && c.Post.ImagePrompt != "" {
		return c.Post.ImagePrompt
	}
	return c.Topic
}
