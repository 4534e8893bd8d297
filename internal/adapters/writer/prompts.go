package writer

import "fmt"

const captionSystem = `You are the editor of an anime news Telegram channel.
Write short, punchy captions in English.
Rules:
1. NO EMOJIS.
2. Tone: exciting, cool, serious.
3. At most 50 words.
4. Wrap the main anime title in <bold></bold> tags exactly once.
5. Wrap impact words (like BREAKING, CONFIRMED, DELAYED) in <mono></mono> tags.
6. You may wrap a short closing remark in <small></small> tags.
7. No other markup, no markdown, no hashtags, no links.`

const articleSystem = `You format anime news articles for a minimal article viewer.
Return ONLY an HTML fragment using these tags: img, p, h3, h4, blockquote, b, i, a, br.
Start with the image tag when an image URL is given, then paragraphs.
Use h3/h4 subheadings and blockquote for quotes where they help readability.
Do not wrap the answer in code fences. Do not add html, head or body tags.
Keep every fact from the source text and invent nothing.`

func captionPrompt(title, summary, source string) string {
	return fmt.Sprintf("News source: %s\nNews title: %s\nNews summary: %s\n\nWrite the caption.", source, title, summary)
}

func articlePrompt(title, fullText, imageURL string) string {
	img := imageURL
	if img == "" {
		img = "(none)"
	}
	return fmt.Sprintf("Title: %s\nImage URL: %s\n\nSource text:\n%s", title, img, fullText)
}
