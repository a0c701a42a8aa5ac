package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"librarydesk/pkg/libraryclient"
	"librarydesk/pkg/session"
)

const (
	defaultAPI     = "http://localhost:3000/api"
	sessionFileEnv = "DESKCTL_SESSION_FILE"
	apiEnv         = "DESKCTL_API"
)

var errNotSignedIn = errors.New("not signed in; run deskctl login first")

// cli carries the global flags and the terminal streams.
type cli struct {
	apiURL      string
	sessionFile string
	timeout     time.Duration

	in  io.Reader
	out io.Writer

	// lines buffers non-terminal input so consecutive prompts read consecutive lines.
	lines *bufio.Reader
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out}

	root := &cobra.Command{
		Use:          "deskctl",
		Short:        "Library desk operator tool",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.apiURL, "api", envOr(apiEnv, defaultAPI), "library API base URL")
	flags.StringVar(&c.sessionFile, "session-file", envOr(sessionFileEnv, defaultSessionFile()), "where the signed-in session is kept")
	flags.DurationVar(&c.timeout, "timeout", 10*time.Second, "per-request API timeout")

	root.AddCommand(
		c.loginCmd(),
		c.registerCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.reportCmd(),
		c.borrowsCmd(),
	)
	return root
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "deskctl.db"
	}
	return filepath.Join(dir, "librarydesk", "deskctl.db")
}

func (c *cli) client() (*libraryclient.Client, error) {
	return libraryclient.New(libraryclient.Config{BaseURL: c.apiURL, Timeout: c.timeout})
}

func (c *cli) store() (*session.LocalStore, error) {
	return session.OpenLocalStore(c.sessionFile)
}

// current loads the stored session. Expired upstream tokens count as signed out.
func (c *cli) current(cmd *cobra.Command, store *session.LocalStore) (session.Session, error) {
	sess, err := store.Get(cmd.Context())
	if errors.Is(err, session.ErrNoSession) {
		return sess, errNotSignedIn
	}
	if err != nil {
		return sess, err
	}
	if exp := sess.ExpiresAt(); !exp.IsZero() && !exp.After(time.Now()) {
		_ = store.Clear(cmd.Context())
		return session.Session{}, errNotSignedIn
	}
	return sess, nil
}

// readPassword masks input on a terminal and reads one line otherwise.
func (c *cli) readPassword(prompt string) (string, error) {
	fmt.Fprint(c.out, prompt)
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.out)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	if c.lines == nil {
		c.lines = bufio.NewReader(c.in)
	}
	line, err := c.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	fmt.Fprintln(c.out)
	return strings.TrimSpace(line), nil
}
