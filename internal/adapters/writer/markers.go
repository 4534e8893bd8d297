package writer

import (
	"strings"

	"github.com/Incredaimaso/AnimeNews-Bot/internal/adapters/textstyle"
)

// markerStyles сопоставляет маркер генератора со стилем текста.
var markerStyles = map[string]textstyle.Style{
	"bold":  textstyle.BoldSans,
	"mono":  textstyle.Monospace,
	"small": textstyle.SmallCaps,
}

// segment — кусок подписи с необязательным маркером.
type segment struct {
	text   string
	marker string
}

type token struct {
	text    string
	marker  string
	closing bool
	isTag   bool
}

// parseMarkers разбирает ответ модели за один проход. Вложенные, непарные и
// незакрытые маркеры отбрасываются, текст внутри них остаётся без стиля.
func parseMarkers(raw string) []segment {
	var (
		out    []segment
		open   string
		buf    strings.Builder
		styled strings.Builder
	)
	flushPlain := func() {
		if buf.Len() > 0 {
			out = append(out, segment{text: buf.String()})
			buf.Reset()
		}
	}
	for _, tok := range tokenize(raw) {
		switch {
		case !tok.isTag:
			if open != "" {
				styled.WriteString(tok.text)
			} else {
				buf.WriteString(tok.text)
			}
		case !tok.closing && open == "":
			flushPlain()
			open = tok.marker
		case tok.closing && tok.marker == open:
			out = append(out, segment{text: styled.String(), marker: open})
			styled.Reset()
			open = ""
		}
	}
	if open != "" {
		buf.WriteString(styled.String())
	}
	flushPlain()
	return merge(out)
}

// tokenize режет строку на текст и маркеры <bold>, </mono> и т.д. без учёта регистра.
func tokenize(raw string) []token {
	var tokens []token
	rest := raw
	for rest != "" {
		idx := strings.IndexByte(rest, '<')
		if idx < 0 {
			tokens = append(tokens, token{text: rest})
			break
		}
		if idx > 0 {
			tokens = append(tokens, token{text: rest[:idx]})
			rest = rest[idx:]
		}
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			tokens = append(tokens, token{text: rest})
			break
		}
		// Одиночный "<" в тексте ("<3", "1 < 2") не должен поглощать следующий маркер.
		if next := strings.IndexByte(rest[1:end], '<'); next >= 0 {
			tokens = append(tokens, token{text: rest[:next+1]})
			rest = rest[next+1:]
			continue
		}
		name := strings.ToLower(strings.TrimSpace(rest[1:end]))
		closing := strings.HasPrefix(name, "/")
		name = strings.TrimSpace(strings.TrimPrefix(name, "/"))
		if _, ok := markerStyles[name]; ok {
			tokens = append(tokens, token{marker: name, closing: closing, isTag: true})
		} else {
			tokens = append(tokens, token{text: rest[:end+1]})
		}
		rest = rest[end+1:]
	}
	return tokens
}

func merge(in []segment) []segment {
	out := in[:0]
	for _, s := range in {
		if s.text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].marker == "" && s.marker == "" {
			out[n-1].text += s.text
			continue
		}
		out = append(out, s)
	}
	return out
}

// ensureTitleBold гарантирует, что название выделено жирным. Если модель его
// не выделила, первое вхождение в обычном тексте оборачивается; если названия
// нет вовсе и жирного нет, оно добавляется в начало.
func ensureTitleBold(segs []segment, title string) []segment {
	title = strings.TrimSpace(title)
	if title == "" {
		return segs
	}
	needle := strings.ToLower(title)
	hasBold := false
	for _, s := range segs {
		if s.marker != "bold" {
			continue
		}
		hasBold = true
		if strings.Contains(strings.ToLower(s.text), needle) {
			return segs
		}
	}
	for i, s := range segs {
		if s.marker != "" {
			continue
		}
		pos := indexFold(s.text, title)
		if pos < 0 {
			continue
		}
		end := pos + len(title)
		repl := []segment{
			{text: s.text[:pos]},
			{text: s.text[pos:end], marker: "bold"},
			{text: s.text[end:]},
		}
		out := append([]segment{}, segs[:i]...)
		out = append(out, repl...)
		out = append(out, segs[i+1:]...)
		return merge(out)
	}
	if hasBold {
		return segs
	}
	return append([]segment{{text: title, marker: "bold"}, {text: "\n\n"}}, segs...)
}

// indexFold ищет подстроку без учёта регистра ASCII и возвращает байтовую позицию.
func indexFold(s, sub string) int {
	if len(sub) > len(s) {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// renderSegments применяет таблицы стилей.
func renderSegments(segs []segment) string {
	var b strings.Builder
	for _, s := range segs {
		if style, ok := markerStyles[s.marker]; ok {
			b.WriteString(textstyle.Convert(s.text, style))
			continue
		}
		b.WriteString(s.text)
	}
	return strings.TrimSpace(b.String())
}

// StyleCaption превращает размеченный ответ модели в итоговую подпись.
func StyleCaption(raw, title string) string {
	return renderSegments(ensureTitleBold(parseMarkers(raw), title))
}
