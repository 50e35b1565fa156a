package datafeed

import (
	"fmt"
	"os"
	"strings"
)

// IDRepository remembers the v1 datafeed id across restarts, together with
// the agent base URL it was created against.
type IDRepository interface {
	Read() (datafeedID string, agentBaseURL string, err error)
	Write(datafeedID string, agentBaseURL string) error
}

// FileIDRepository stores the id as a single line "<id>@<base_url>".
type FileIDRepository struct {
	path string
}

// NewFileIDRepository persists under the given path.
func NewFileIDRepository(path string) *FileIDRepository {
	return &FileIDRepository{path: path}
}

// Read returns empty values without error when no id has been persisted yet.
func (r *FileIDRepository) Read() (string, string, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("read datafeed id file: %w", err)
	}
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return "", "", nil
	}
	separator := strings.Index(line, "@")
	if separator <= 0 || separator == len(line)-1 {
		return "", "", fmt.Errorf("malformed datafeed id file %s", r.path)
	}
	return line[:separator], line[separator+1:], nil
}

func (r *FileIDRepository) Write(datafeedID string, agentBaseURL string) error {
	content := fmt.Sprintf("%s@%s", datafeedID, agentBaseURL)
	if err := os.WriteFile(r.path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("write datafeed id file: %w", err)
	}
	return nil
}
