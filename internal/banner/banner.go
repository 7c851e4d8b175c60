package banner

import (
	"stageq/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

const ascii = `
     _                        
 ___| |_ __ _  __ _  ___  __ _ 
/ __| __/ _' |/ _' |/ _ \/ _' |
\__ \ || (_| | (_| |  __/ (_| |
|___/\__\__,_|\__, |\___|\__, |
              |___/         |_|`

func GetString() string {
	style := lipgloss.DefaultRenderer().NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	return "\n" + style.Render(ascii) + "\n"
}
