// Package textstyle переводит латиницу и цифры в стилизованные символы Unicode
// (жирный без засечек, моноширинный, капитель и т.д.).
package textstyle

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// Style — имя таблицы подстановки.
type Style string

const (
	BoldSans  Style = "bold_sans"
	SmallCaps Style = "small_caps"
	Script    Style = "script"
	Bubble    Style = "bubble"
	Monospace Style = "monospace"
	Fraktur   Style = "fraktur"
)

const (
	lower  = "abcdefghijklmnopqrstuvwxyz"
	upper  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits = "0123456789"
)

var sources = map[Style][2]string{
	BoldSans:  {lower + upper + digits, "𝗮𝗯𝗰𝗱𝗲𝗳𝗴𝗵𝗶𝗷𝗸𝗹𝗺𝗻𝗼𝗽𝗾𝗿𝘀𝘁𝘂𝘃𝘄𝘅𝘆𝘇𝗔𝗕𝗖𝗗𝗘𝗙𝗚𝗛𝗜𝗝𝗞𝗟𝗠𝗡𝗢𝗣𝗤𝗥𝗦𝗧𝗨𝗩𝗪𝗫𝗬𝗭𝟬𝟭𝟮𝟯𝟰𝟱𝟲𝟳𝟴𝟵"},
	SmallCaps: {lower, "ᴀʙᴄᴅᴇꜰɢʜɪᴊᴋʟᴍɴᴏᴘǫʀsᴛᴜᴠᴡxʏᴢ"},
	Script:    {lower + upper, "𝓪𝓫𝓬𝓭𝓮𝓯𝓰𝓱𝓲𝓳𝓴𝓵𝓶𝓷𝓸𝓹𝓺𝓻𝓼𝓽𝓾𝓿𝔀𝔁𝔂𝔃𝓐𝓑𝓒𝓓𝓔𝓕𝓖𝓗𝓘𝓙𝓚𝓛𝓜𝓝𝓞𝓟𝓠𝓡𝓢𝓣𝓤𝓥𝓦𝓧𝓨𝓩"},
	Bubble:    {lower + upper + digits, "ⓐⓑⓒⓓⓔⓕⓖⓗⓘⓙⓚⓛⓜⓝⓞⓟⓠⓡⓢⓣⓤⓥⓦⓧⓨⓩⒶⒷⒸⒹⒺⒻⒼⒽⒾⒿⓀⓁⓂⓃⓄⓅⓆⓇⓈⓉⓊⓋⓌⓍⓎⓏ⓪①②③④⑤⑥⑦⑧⑨"},
	Monospace: {lower + upper + digits, "𝚊𝚋𝚌𝚍𝚎𝚏𝚐𝚑𝚒𝚓𝚔𝚕𝚖𝚗𝚘𝚙𝚚𝚛𝚜𝚝𝚞𝚟𝚠𝚡𝚢𝚣𝙰𝙱𝙲𝙳𝙴𝙵𝙶𝙷𝙸𝙹𝙺𝙻𝙼𝙽𝙾𝙿𝚀𝚁𝚂𝚃𝚄𝚅𝚆𝚇𝚈𝚉𝟶𝟷𝟸𝟹𝟺𝟻𝟼𝟽𝟾𝟿"},
	Fraktur:   {lower + upper, "𝔞𝔟𝔠𝔡𝔢𝔣𝔤𝔥𝔦𝔧𝔨𝔩𝔪𝔫𝔬𝔭𝔮𝔯𝔰𝔱𝔲𝔳𝔴𝔵𝔶𝔷𝔄𝔅ℭ𝔇𝔈𝔉𝔊ℌℑ𝔍𝔎𝔏𝔐𝔑𝔒𝔓𝔔ℜ𝔖𝔗𝔘𝔙𝔚𝔛𝔜ℨ"},
}

type table struct {
	forward map[rune]rune
	inverse map[rune]rune
}

var tables = buildTables()

func buildTables() map[Style]table {
	out := make(map[Style]table, len(sources))
	for style, pair := range sources {
		from, to := []rune(pair[0]), []rune(pair[1])
		if len(from) != len(to) {
			panic(fmt.Sprintf("textstyle: table %s has %d source and %d target runes", style, len(from), len(to)))
		}
		t := table{forward: make(map[rune]rune, len(from)), inverse: make(map[rune]rune, len(from))}
		for i, r := range from {
			t.forward[r] = to[i]
			t.inverse[to[i]] = r
		}
		out[style] = t
	}
	return out
}

// Styles перечисляет доступные таблицы.
func Styles() []Style {
	return []Style{BoldSans, SmallCaps, Script, Bubble, Monospace, Fraktur}
}

// Convert заменяет символы по таблице стиля; прочие символы сохраняются.
// Неизвестный стиль возвращает текст без изменений.
func Convert(text string, style Style) string {
	return mapRunes(text, tables[style].forward)
}

// Invert выполняет обратную подстановку.
func Invert(text string, style Style) string {
	return mapRunes(text, tables[style].inverse)
}

func mapRunes(text string, m map[rune]rune) string {
	if len(m) == 0 {
		return text
	}
	return strings.Map(func(r rune) rune {
		if v, ok := m[r]; ok {
			return v
		}
		return r
	}, text)
}

var bullets = []string{
	"►", "◼", "●", "✦", "★", "✶", "✴", "❄", "➤", "➥",
	"➦", "➧", "➨", "➩", "➪", "➯", "➱", "➲", "➳", "➼",
	"➽", "➾", "➔", "➜", "➝", "➞", "✐", "✎", "✏", "✑",
	"✒", "✓", "✔", "✕", "✖", "✗", "✘", "✙", "✚", "✛",
	"✜", "✝", "✞", "✟", "✠", "✡", "✢", "✣", "✤", "✥",
}

var separators = []string{
	"─ ─ ─ ─ ─ ─ ─ ─",
	"▪ ▪ ▪ ▪ ▪ ▪ ▪ ▪",
	"━━━━━━━━━━━━━━",
	"• • • • • • • •",
	"∼∼∼∼∼∼∼∼∼∼∼∼∼∼",
	"❖ ❖ ❖ ❖ ❖ ❖ ❖",
}

// Bullet выбирает маркер списка, стабильно для одного и того же seed.
func Bullet(seed string) string {
	return bullets[pick(seed, len(bullets))]
}

// Separator выбирает разделитель, стабильно для одного и того же seed.
func Separator(seed string) string {
	return separators[pick(seed, len(separators))]
}

func pick(seed string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return int(h.Sum32() % uint32(n))
}
