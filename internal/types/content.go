package types

// Content block type tags.
const (
	BlockText     = "text"
	BlockImage    = "image_url"
	BlockVideo    = "video_url"
	BlockDocument = "document_url"
	BlockAudio    = "audio_url"
)

// ContentBlock is a typed view over one multimodal content block.
type ContentBlock struct {
	Type        string    `json:"type"`
	Text        string    `json:"text,omitempty"`
	ImageURL    *MediaURL `json:"image_url,omitempty"`
	VideoURL    *MediaURL `json:"video_url,omitempty"`
	DocumentURL *MediaURL `json:"document_url,omitempty"`
	AudioURL    *MediaURL `json:"audio_url,omitempty"`
}

// MediaURL holds a media reference: a data URI or an external URL.
type MediaURL struct {
	URL string `json:"url"`
}

// URL returns the media URL carried by the block, if any.
func (b ContentBlock) URL() string {
	var m *MediaURL
	switch b.Type {
	case BlockImage:
		m = b.ImageURL
	case BlockVideo:
		m = b.VideoURL
	case BlockDocument:
		m = b.DocumentURL
	case BlockAudio:
		m = b.AudioURL
	}
	if m == nil {
		return ""
	}
	return m.URL
}

// ContentBlocks returns the typed view of an array-valued message content.
// The second result is false when content is not a block sequence.
func ContentBlocks(content any) ([]ContentBlock, bool) {
	switch c := content.(type) {
	case []ContentBlock:
		return c, true
	case []any:
		blocks := make([]ContentBlock, 0, len(c))
		for _, raw := range c {
			blocks = append(blocks, blockFromMap(raw))
		}
		return blocks, true
	case []map[string]any:
		blocks := make([]ContentBlock, 0, len(c))
		for _, raw := range c {
			blocks = append(blocks, blockFromMap(raw))
		}
		return blocks, true
	}
	return nil, false
}

func blockFromMap(raw any) ContentBlock {
	m, ok := raw.(map[string]any)
	if !ok {
		return ContentBlock{}
	}
	b := ContentBlock{}
	b.Type, _ = m["type"].(string)
	b.Text, _ = m["text"].(string)
	b.ImageURL = mediaFromMap(m[BlockImage])
	b.VideoURL = mediaFromMap(m[BlockVideo])
	b.DocumentURL = mediaFromMap(m[BlockDocument])
	b.AudioURL = mediaFromMap(m[BlockAudio])
	return b
}

func mediaFromMap(v any) *MediaURL {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	u, _ := m["url"].(string)
	return &MediaURL{URL: u}
}
