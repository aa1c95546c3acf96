package inputs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uyoufu/uzoncalc/pkg/calc"
	"github.com/uyoufu/uzoncalc/pkg/logging"
)

// Command is a Provider that runs an external program. The program receives
// the values resolved so far as JSON on stdin and prints a defaults document
// (JSON or YAML) on stdout. Its stderr is forwarded to the logger.
type Command struct {
	Binary  string
	Args    []string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (c *Command) Name() string { return "command:" + c.Binary }

func (c *Command) Defaults(ctx context.Context, current calc.Defaults) (calc.Defaults, error) {
	if c.Binary == "" {
		return nil, fmt.Errorf("command provider has no binary")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdin, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("marshal current inputs: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	cmd.Env = os.Environ()
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	c.forwardStderr(&stderr)
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s: timed out after %v", c.Binary, timeout)
		}
		return nil, fmt.Errorf("run %s: %w", c.Binary, runErr)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if len(out) == 0 {
		return calc.Defaults{}, nil
	}
	d, err := Parse(out, out[0] == '{')
	if err != nil {
		return nil, fmt.Errorf("%s: parse output: %w", c.Binary, err)
	}
	return d, nil
}

func (c *Command) forwardStderr(buf *bytes.Buffer) {
	logger := logging.OrNop(c.Logger)
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logger.Info("input command", zap.String("binary", c.Binary), zap.String("line", line))
		}
	}
}
