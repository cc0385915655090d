package theme

import (
	"fmt"
)

// Banner returns the startup banner.
func Banner() string {
	const yellow = "\033[33m"
	const magenta = "\033[35m"
	const reset = "\033[0m"

	art := "" +
		"   ๛   " + magenta + "GOATBOT" + reset + "   ๛\n" +
		yellow + "      ((   ))\n" + reset +
		yellow + "       \\\\ //   _\n" + reset +
		yellow + "        (oo)__/ |\n" + reset +
		yellow + "        /----\\ /\n" + reset +
		"   the memelord that never sleeps 🐐\n"
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
