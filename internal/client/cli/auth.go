package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tradegate/internal/allowlist"
	"github.com/dmitrijs2005/tradegate/internal/client/services"
	"github.com/dmitrijs2005/tradegate/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
// They point to interactive input helpers and can be swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register opens the broker's registration page, lets the user complete it
// and, once the page reports success, authorizes the captured identity
// against the allow-list.
func (a *App) Register(ctx context.Context) error {
	flow, release, err := a.openFlow(ctx)
	if err != nil {
		return fmt.Errorf("open registration page: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			a.logger.Warn(ctx, "closing registration page failed", "error", err)
		}
	}()

	reg, err := a.gate.RunRegistration(ctx, flow)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrFlowAbandoned):
		printlnFn("Registration was not completed:", reg.Flow.Reason)
		return nil
	case refused(reg.Verdict, err):
		a.explain(ctx, reg.Verdict, err)
		return nil
	case errors.Is(err, common.ErrExtractionIncomplete):
		printlnFn("Registration succeeded but the session could not be captured. Please use 'login'.")
		return nil
	default:
		return err
	}

	printlnFn("Registration complete. Welcome,", displayName(reg.Session))
	a.watchRevocation()
	return nil
}

// Login prompts for credentials and signs in an account registered earlier.
// The password is wiped before returning.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out, "Enter password: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	v, err := a.gate.Login(ctx, email, string(password))
	switch {
	case err == nil:
	case refused(v, err):
		a.explain(ctx, v, err)
		return nil
	case errors.Is(err, common.ErrorUnauthorized):
		printlnFn("Wrong email or password.")
		return nil
	default:
		return err
	}

	s, _ := a.gate.Current()
	printlnFn("Login successful. Welcome,", displayName(s))
	a.watchRevocation()
	return nil
}

// refused reports whether err comes from an allow-list verdict other than
// Authorized. Such verdicts carry the message shown to the user.
func refused(v allowlist.Verdict, err error) bool {
	return err != nil && v.Kind != allowlist.Authorized && v.Message != ""
}

// explain shows the verdict's message; causes stay in the log.
func (a *App) explain(ctx context.Context, v allowlist.Verdict, err error) {
	a.logger.Warn(ctx, "access refused", "verdict", v.Kind, "error", err)
	printlnFn(v.Message)
}

// Logout ends the session and removes it from disk.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		printlnFn("Not logged in.")
		return nil
	}
	if err := a.gate.Logout(ctx); err != nil {
		return err
	}
	printlnFn("Logged out.")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	s, ok := a.gate.Current()
	if !ok {
		printlnFn("Not logged in.")
		return nil
	}
	printlnFn("User:    ", displayName(s))
	printlnFn("User id: ", s.ExternalUserID)
	printlnFn("Device:  ", s.DeviceType, s.DeviceID)
	printlnFn("Currency:", s.Currency, s.CurrencyISO)
	printlnFn("Since:   ", s.SavedAt.Local().Format("2006-01-02 15:04:05"))
	return nil
}

// Currency changes the display currency: "currency EUR 978".
func (a *App) Currency(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		printlnFn("Usage: currency <code> [iso]")
		return nil
	}
	code := strings.ToUpper(args[0])
	iso := ""
	if len(args) == 2 {
		iso = args[1]
	}
	if err := a.gate.SetCurrency(ctx, code, iso); err != nil {
		if errors.Is(err, common.ErrNoSession) {
			printlnFn("Not logged in.")
			return nil
		}
		return err
	}
	printlnFn("Currency set to", code)
	return nil
}
