package shell

import (
	"context"
	"strconv"
	"strings"

	"go_hostpanel/internal/adapter"
)

// MailAdapter drives an external mailbox tool configured as MAIL_CMD.
// The tool understands mailbox-add, mailbox-del, mailbox-list and
// mailbox-passwd; passwords are written to its stdin.
type MailAdapter struct {
	base
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return address
}

// ListMailboxes returns every mailbox of a domain
func (a *MailAdapter) ListMailboxes(ctx context.Context, rc *adapter.Context, domain string) ([]string, error) {
	out, err := a.run(ctx, a.cfg.MailCmd, "", "mailbox-list", domain)
	if err != nil {
		return nil, err
	}
	var boxes []string
	for _, line := range strings.Split(out.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			boxes = append(boxes, line)
		}
	}
	return boxes, nil
}

func (a *MailAdapter) exists(ctx context.Context, rc *adapter.Context, address string) (bool, error) {
	boxes, err := a.ListMailboxes(ctx, rc, domainOf(address))
	if err != nil {
		return false, err
	}
	for _, box := range boxes {
		if strings.EqualFold(box, address) {
			return true, nil
		}
	}
	return false, nil
}

// EnsureMailboxPresent creates the mailbox when missing
func (a *MailAdapter) EnsureMailboxPresent(ctx context.Context, rc *adapter.Context, spec adapter.MailboxSpec) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameMail, Operation: adapter.OpCreate, TargetKind: "mailbox", TargetKey: spec.Address, Details: map[string]any{"quotaMb": spec.QuotaMB}}

	exists, err := a.exists(ctx, rc, spec.Address)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if exists {
		entry.Details["action"] = "exists"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	if _, err := a.run(ctx, a.cfg.MailCmd, spec.Password, "mailbox-add", spec.Address, strconv.Itoa(spec.QuotaMB)); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}

	address := spec.Address
	entry.Details["action"] = "created"
	return adapter.Result{
		Details: entry.Details,
		Rollback: &adapter.Rollback{
			Kind:       "mailbox.delete",
			Adapter:    adapter.NameMail,
			TargetKind: "mailbox",
			TargetKey:  address,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := a.run(ctx, a.cfg.MailCmd, "", "mailbox-del", address)
				return err
			},
		},
	}, a.record(ctx, rc, entry, nil)
}

// EnsureMailboxAbsent deletes the mailbox when present
func (a *MailAdapter) EnsureMailboxAbsent(ctx context.Context, rc *adapter.Context, address string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameMail, Operation: adapter.OpDelete, TargetKind: "mailbox", TargetKey: address, Details: map[string]any{}}
	exists, err := a.exists(ctx, rc, address)
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if !exists {
		entry.Details["action"] = "absent"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}
	_, err = a.run(ctx, a.cfg.MailCmd, "", "mailbox-del", address)
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}

// RotateMailboxPassword sets a new mailbox password
func (a *MailAdapter) RotateMailboxPassword(ctx context.Context, rc *adapter.Context, address, password string) (adapter.Result, error) {
	entry := adapter.LogEntry{Adapter: adapter.NameMail, Operation: adapter.OpUpdate, TargetKind: "mailbox", TargetKey: address, Details: map[string]any{"action": "rotate_password"}}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}
	_, err := a.run(ctx, a.cfg.MailCmd, password, "mailbox-passwd", address)
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}
