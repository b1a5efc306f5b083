package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
)

const validateSystem = `You review lesson outlines written by teachers for learners aged 3 to 18.
Score the outline and return JSON matching the schema.
- safety_score: 1.0 is entirely appropriate for children, 0.0 is harmful.
- specificity_score: 1.0 names a concrete topic and learning goal, 0.0 is vague.
- matches_topic_catalog: true when the topic fits a school subject.
- target_age_range: the learner ages the outline is written for.
- actionable: true when lessons can be built from the outline as written.
- requirements: concrete requirements the teacher stated.
- detected_topic and detected_domains: the subject matter.`

const blocksSystem = `You plan interactive lessons from a teacher's outline.
Split the outline into lessons. Each lesson has a title and an ordered list of blocks.
Block types:
- text: content is the lesson text.
- image: format is "svg" or "url", content is the SVG markup or URL, alt is required, caption is optional.
- interaction: kind is one of input, quiz, visualization, dragdrop; prompt is required; metadata_json is a JSON object encoded as a string or null.
Set every field that does not apply to a block's type to null.
Use at most 100 blocks across all lessons.`

const sourceSystem = `You write a single React component in TypeScript (TSX) that renders one lesson.
Rules:
- Export the component as the default export.
- Import only from: react, lucide-react, framer-motion, recharts, clsx, and @/components/ui/*.
- Do not use routing, network, storage or backend SDKs.
- Do not import local files.
Return JSON with the complete file in "source". Do not wrap it in markdown.`

func validateUser(outlineText string) string {
	return "OUTLINE:\n" + strings.TrimSpace(outlineText)
}

func blocksUser(outlineText string, fb types.Feedback) string {
	var b strings.Builder
	b.WriteString("OUTLINE:\n")
	b.WriteString(strings.TrimSpace(outlineText))
	b.WriteString("\n\nCONTEXT:\n")
	fmt.Fprintf(&b, "topic: %s\n", fb.Topic)
	fmt.Fprintf(&b, "ages: %s\n", fb.AgeRange)
	if len(fb.Domains) > 0 {
		fmt.Fprintf(&b, "domains: %s\n", strings.Join(fb.Domains, ", "))
	}
	if len(fb.Requirements) > 0 {
		b.WriteString("requirements:\n")
		for _, r := range fb.Requirements {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

func sourceUser(title string, blocks types.Blocks, lc types.LessonContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LESSON: %s\n", title)
	fmt.Fprintf(&b, "topic: %s\nages: %s\ncomplexity: %s\n", lc.Topic, lc.AgeRange, lc.Complexity)
	if len(lc.Domains) > 0 {
		fmt.Fprintf(&b, "domains: %s\n", strings.Join(lc.Domains, ", "))
	}
	b.WriteString("\nBLOCKS:\n")
	writeBlocks(&b, blocks)
	return b.String()
}

func regenerateUser(original string, errs []types.ValidationError, title string, blocks types.Blocks, attempt int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "LESSON: %s\nATTEMPT: %d\n\n", title, attempt)
	b.WriteString("The previous source failed validation. Fix every error below and return the full corrected file.\n\nERRORS:\n")
	for _, e := range errs {
		fmt.Fprintf(&b, "- %s\n", e.String())
	}
	b.WriteString("\nPREVIOUS SOURCE:\n")
	b.WriteString(original)
	b.WriteString("\n\nBLOCKS:\n")
	writeBlocks(&b, blocks)
	return b.String()
}

func writeBlocks(b *strings.Builder, blocks types.Blocks) {
	for i, blk := range blocks {
		line := types.MatchBlock(blk,
			func(t types.TextBlock) string {
				return fmt.Sprintf("text: %s", t.Content)
			},
			func(im types.ImageBlock) string {
				s := fmt.Sprintf("image (%s) alt=%q: %s", im.Format, im.Alt, im.Content)
				if im.Caption != nil {
					s += fmt.Sprintf(" caption=%q", *im.Caption)
				}
				return s
			},
			func(in types.InteractionBlock) string {
				s := fmt.Sprintf("interaction (%s): %s", in.Kind, in.Prompt)
				if len(in.Metadata) > 0 {
					if raw, err := json.Marshal(in.Metadata); err == nil {
						s += " metadata=" + string(raw)
					}
				}
				return s
			},
		)
		fmt.Fprintf(b, "%d. %s\n", i+1, line)
	}
}
