package shell

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// DefaultPrompt is used without a configuration.
const DefaultPrompt = "%u@%h %d %j%s "

var (
	colorPromptOK   = color.New(color.FgGreen, color.Bold)
	colorPromptFail = color.New(color.FgRed, color.Bold)
	colorPromptDir  = color.New(color.FgBlue, color.Bold)
)

// Prompt renders the configured prompt format.
func (s *Shell) Prompt() string {
	format := DefaultPrompt
	if s.Config != nil && s.Config.Prompt != "" {
		format = s.Config.Prompt
	}

	var sb strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i+1 == len(format) {
			sb.WriteByte(format[i])
			continue
		}

		i++
		switch format[i] {
		case 'u':
			sb.WriteString(s.Env.Get(EnvUser))
		case 'h':
			sb.WriteString(s.shortHostname())
		case 'd':
			sb.WriteString(colorPromptDir.Sprint(collapseHome(s.Dir(), s.Env.Get(EnvHome))))
		case 's':
			if s.LastStatus == 0 {
				sb.WriteString(colorPromptOK.Sprint("$"))
			} else {
				sb.WriteString(colorPromptFail.Sprintf("%d$", s.LastStatus))
			}
		case 'j':
			if n := s.Jobs.Table.Active(); n > 0 {
				fmt.Fprintf(&sb, "[%d]", n)
			}
		case '%':
			sb.WriteByte('%')
		default:
			sb.WriteByte('%')
			sb.WriteByte(format[i])
		}
	}

	return sb.String()
}

func (s *Shell) shortHostname() string {
	hostname := os.Hostname
	if s.hostname != nil {
		hostname = s.hostname
	}
	host, err := hostname()
	if err != nil {
		return "localhost"
	}
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	return host
}
