package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxBlocksPerOutline caps the number of blocks across every lesson of one outline.
const MaxBlocksPerOutline = 100

type BlockKind string

const (
	BlockText        BlockKind = "text"
	BlockImage       BlockKind = "image"
	BlockInteraction BlockKind = "interaction"
)

type ImageFormat string

const (
	ImageSVG ImageFormat = "svg"
	ImageURL ImageFormat = "url"
)

type InteractionKind string

const (
	InteractionInput         InteractionKind = "input"
	InteractionQuiz          InteractionKind = "quiz"
	InteractionVisualization InteractionKind = "visualization"
	InteractionDragDrop      InteractionKind = "dragdrop"
)

// Block is a closed sum of TextBlock, ImageBlock and InteractionBlock. Use
// MatchBlock to consume one exhaustively.
type Block interface {
	BlockKind() BlockKind
	Validate() error
	sealedBlock()
}

type TextBlock struct {
	Content string `json:"content"`
}

type ImageBlock struct {
	Format  ImageFormat `json:"format"`
	Content string      `json:"content"`
	Alt     string      `json:"alt"`
	Caption *string     `json:"caption,omitempty"`
}

type InteractionBlock struct {
	Kind     InteractionKind `json:"kind"`
	Prompt   string          `json:"prompt"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

func (TextBlock) BlockKind() BlockKind        { return BlockText }
func (ImageBlock) BlockKind() BlockKind       { return BlockImage }
func (InteractionBlock) BlockKind() BlockKind { return BlockInteraction }

func (TextBlock) sealedBlock()        {}
func (ImageBlock) sealedBlock()       {}
func (InteractionBlock) sealedBlock() {}

func (b TextBlock) Validate() error {
	if strings.TrimSpace(b.Content) == "" {
		return fmt.Errorf("text block: empty content")
	}
	return nil
}

func (b ImageBlock) Validate() error {
	switch b.Format {
	case ImageSVG, ImageURL:
	default:
		return fmt.Errorf("image block: unsupported format %q", b.Format)
	}
	if strings.TrimSpace(b.Content) == "" {
		return fmt.Errorf("image block: empty content")
	}
	if strings.TrimSpace(b.Alt) == "" {
		return fmt.Errorf("image block: empty alt text")
	}
	return nil
}

func (b InteractionBlock) Validate() error {
	switch b.Kind {
	case InteractionInput, InteractionQuiz, InteractionVisualization, InteractionDragDrop:
	default:
		return fmt.Errorf("interaction block: unsupported kind %q", b.Kind)
	}
	if strings.TrimSpace(b.Prompt) == "" {
		return fmt.Errorf("interaction block: empty prompt")
	}
	return nil
}

// MatchBlock dispatches on the concrete variant. Every variant must be handled.
func MatchBlock[T any](b Block, text func(TextBlock) T, image func(ImageBlock) T, interaction func(InteractionBlock) T) T {
	switch v := b.(type) {
	case TextBlock:
		return text(v)
	case *TextBlock:
		return text(*v)
	case ImageBlock:
		return image(v)
	case *ImageBlock:
		return image(*v)
	case InteractionBlock:
		return interaction(v)
	case *InteractionBlock:
		return interaction(*v)
	default:
		panic(fmt.Sprintf("generation: unknown block variant %T", b))
	}
}

type blockEnvelope struct {
	Type     BlockKind       `json:"type"`
	Content  string          `json:"content,omitempty"`
	Format   ImageFormat     `json:"format,omitempty"`
	Alt      string          `json:"alt,omitempty"`
	Caption  *string         `json:"caption,omitempty"`
	Kind     InteractionKind `json:"kind,omitempty"`
	Prompt   string          `json:"prompt,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

func envelopeOf(b Block) blockEnvelope {
	return MatchBlock(b,
		func(t TextBlock) blockEnvelope {
			return blockEnvelope{Type: BlockText, Content: t.Content}
		},
		func(i ImageBlock) blockEnvelope {
			return blockEnvelope{Type: BlockImage, Format: i.Format, Content: i.Content, Alt: i.Alt, Caption: i.Caption}
		},
		func(i InteractionBlock) blockEnvelope {
			return blockEnvelope{Type: BlockInteraction, Kind: i.Kind, Prompt: i.Prompt, Metadata: i.Metadata}
		},
	)
}

func (e blockEnvelope) block() (Block, error) {
	switch e.Type {
	case BlockText:
		return TextBlock{Content: e.Content}, nil
	case BlockImage:
		return ImageBlock{Format: e.Format, Content: e.Content, Alt: e.Alt, Caption: e.Caption}, nil
	case BlockInteraction:
		return InteractionBlock{Kind: e.Kind, Prompt: e.Prompt, Metadata: e.Metadata}, nil
	default:
		return nil, fmt.Errorf("unknown block type %q", e.Type)
	}
}

// Blocks is the JSON form of a block list, tagged by "type".
type Blocks []Block

func (bs Blocks) MarshalJSON() ([]byte, error) {
	out := make([]blockEnvelope, 0, len(bs))
	for _, b := range bs {
		out = append(out, envelopeOf(b))
	}
	return json.Marshal(out)
}

func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raw []blockEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Blocks, 0, len(raw))
	for i, e := range raw {
		b, err := e.block()
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

// Lesson is a titled group of blocks.
type Lesson struct {
	Title  string `json:"title"`
	Blocks Blocks `json:"blocks"`
}

// CountBlocks sums blocks across lessons.
func CountBlocks(lessons []Lesson) int {
	n := 0
	for _, l := range lessons {
		n += len(l.Blocks)
	}
	return n
}
