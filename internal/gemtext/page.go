package gemtext

import (
	"strings"
)

// pageBuilder accumulates Gemtext lines.
type pageBuilder struct {
	strings.Builder
}

func (p *pageBuilder) heading(level int, text string) {
	p.WriteString(strings.Repeat("#", level))
	p.WriteByte(' ')
	p.WriteString(text)
	p.WriteByte('\n')
}

func (p *pageBuilder) link(target, label string) {
	p.WriteString("=>")
	p.WriteString(target)
	if label != "" {
		p.WriteByte(' ')
		p.WriteString(label)
	}
	p.WriteByte('\n')
}

func (p *pageBuilder) line(text string) {
	p.WriteString(text)
	p.WriteByte('\n')
}

func (p *pageBuilder) blank() {
	p.WriteByte('\n')
}
