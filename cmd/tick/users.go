package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nugget/tick/internal/users"
)

// runUserAdd creates an account. Tick has no sign-up endpoint; accounts
// are provisioned here.
func runUserAdd(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, email, name, password string) error {
	a, err := openApp(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer a.close()

	u, err := a.users.Create(ctx, email, name, password)
	if errors.Is(err, users.ErrEmailTaken) {
		return fmt.Errorf("useradd: %s is already registered", email)
	}
	if err != nil {
		return fmt.Errorf("useradd: %w", err)
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(u)
	}
	fmt.Fprintf(stdout, "Created user %s <%s> (id %s)\n", u.Name, u.Email, u.ID)
	return nil
}
