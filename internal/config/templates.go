package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const backendTemplate = `command_endpoint = "tcp://127.0.0.1:5555"
telemetry_endpoint = "tcp://127.0.0.1:5556"
steps = 5
tick = "1s"
`

var templates = map[string]func() (string, error){
	"labdeck": renderLabdeck,
	"backend": func() (string, error) { return backendTemplate, nil },
}

func renderLabdeck() (string, error) {
	raw, err := toml.Marshal(DefaultLabdeckConfig())
	if err != nil {
		return "", fmt.Errorf("render labdeck template: %w", err)
	}
	return "# labdeck host config; omitted keys keep these defaults\n" + string(raw), nil
}

// Kinds lists the template kinds Template accepts.
func Kinds() []string {
	out := make([]string, 0, len(templates))
	for kind := range templates {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func Template(kind string) (string, error) {
	render, ok := templates[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return "", fmt.Errorf("%w: unknown config kind %q (want one of %s)",
			ErrInvalidConfig, kind, strings.Join(Kinds(), "|"))
	}
	return render()
}

// WriteTemplate renders kind to path, refusing to replace an existing file
// unless overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("config already exists: %s", path)
		}
		return err
	}
	if _, err := f.WriteString(template); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
