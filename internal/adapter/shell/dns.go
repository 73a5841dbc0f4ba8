package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/execx"
)

const defaultZoneTTL = 3600

// DNSAdapter writes bind-style zone files. Files are built and re-parsed
// with miekg/dns before the server is asked to reload them.
type DNSAdapter struct {
	base
	now func() time.Time
}

// NewDNSAdapter creates the zone file adapter
func NewDNSAdapter(b base) *DNSAdapter {
	return &DNSAdapter{base: b, now: time.Now}
}

func (a *DNSAdapter) zonePath(zone string) string {
	return filepath.Join(a.cfg.Paths.ZoneDir, "db."+strings.TrimSuffix(zone, "."))
}

func ownerName(name, origin string) string {
	switch {
	case name == "" || name == "@":
		return origin
	case dns.IsFqdn(name):
		return name
	default:
		return name + "." + origin
	}
}

// BuildZone assembles the SOA, NS and caller records of a zone
func BuildZone(zone string, nameServers []string, records []adapter.ZoneRecord, serial uint32) ([]dns.RR, error) {
	if len(nameServers) == 0 {
		return nil, fmt.Errorf("at least one name server is required")
	}
	origin := dns.Fqdn(zone)
	if _, ok := dns.IsDomainName(origin); !ok {
		return nil, fmt.Errorf("invalid zone %q", zone)
	}

	rrs := []dns.RR{&dns.SOA{
		Hdr:     dns.RR_Header{Name: origin, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: defaultZoneTTL},
		Ns:      dns.Fqdn(nameServers[0]),
		Mbox:    "hostmaster." + origin,
		Serial:  serial,
		Refresh: 3600,
		Retry:   600,
		Expire:  604800,
		Minttl:  300,
	}}
	for _, ns := range nameServers {
		rrs = append(rrs, &dns.NS{
			Hdr: dns.RR_Header{Name: origin, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: defaultZoneTTL},
			Ns:  dns.Fqdn(ns),
		})
	}

	for _, rec := range records {
		ttl := rec.TTL
		if ttl <= 0 {
			ttl = defaultZoneTTL
		}
		value := rec.Value
		switch strings.ToUpper(rec.Type) {
		case "MX":
			value = fmt.Sprintf("%d %s", rec.Priority, dns.Fqdn(ownerName(rec.Value, origin)))
		case "TXT":
			value = strconv.Quote(rec.Value)
		case "CNAME", "NS":
			value = ownerName(rec.Value, origin)
		}
		rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", ownerName(rec.Name, origin), ttl, strings.ToUpper(rec.Type), value))
		if err != nil {
			return nil, fmt.Errorf("record %s %s: %w", rec.Name, rec.Type, err)
		}
		rrs = append(rrs, rr)
	}
	return rrs, nil
}

// RenderZone serialises records as a zone file
func RenderZone(zone string, rrs []dns.RR) string {
	var b strings.Builder
	fmt.Fprintf(&b, "; managed by go_hostpanel\n$ORIGIN %s\n$TTL %d\n", dns.Fqdn(zone), defaultZoneTTL)
	for _, rr := range rrs {
		b.WriteString(rr.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// ParseZone parses zone file content
func ParseZone(zone, content string) ([]dns.RR, error) {
	zp := dns.NewZoneParser(strings.NewReader(content), dns.Fqdn(zone), "")
	var rrs []dns.RR
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		rrs = append(rrs, rr)
	}
	if err := zp.Err(); err != nil {
		return nil, err
	}
	return rrs, nil
}

// fingerprint is the sorted record set without the SOA, whose serial
// changes on every render
func fingerprint(rrs []dns.RR) string {
	lines := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeSOA {
			continue
		}
		lines = append(lines, rr.String())
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

func (a *DNSAdapter) serial() uint32 {
	n, _ := strconv.ParseUint(a.now().UTC().Format("2006010215"), 10, 32)
	return uint32(n)
}

func (a *DNSAdapter) reloadZone(ctx context.Context, zone string) error {
	if a.cfg.Tools.DNSReload == "" {
		return nil
	}
	_, err := a.exec.Run(ctx, execx.Command{Name: a.cfg.Tools.DNSReload, Args: []string{"reload", strings.TrimSuffix(zone, ".")}})
	return err
}

// EnsureZonePresent writes the zone when its record set differs
func (a *DNSAdapter) EnsureZonePresent(ctx context.Context, rc *adapter.Context, spec adapter.ZoneSpec) (adapter.Result, error) {
	path := a.zonePath(spec.Zone)
	entry := adapter.LogEntry{Adapter: adapter.NameDNS, Operation: adapter.OpCreate, TargetKind: "dns_zone", TargetKey: spec.Zone, Details: map[string]any{"path": path}}

	rrs, err := BuildZone(spec.Zone, a.cfg.NameServers, spec.Records, a.serial())
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	content := RenderZone(spec.Zone, rrs)
	if _, err := ParseZone(spec.Zone, content); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, fmt.Errorf("rendered zone does not parse: %w", err))
	}
	entry.Details["records"] = len(rrs)

	previous, readErr := os.ReadFile(path)
	existed := readErr == nil
	if existed {
		if current, err := ParseZone(spec.Zone, string(previous)); err == nil && fingerprint(current) == fingerprint(rrs) {
			entry.Details["action"] = "unchanged"
			return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
		}
	}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	if err := a.reloadZone(ctx, spec.Zone); err != nil {
		_ = restore(path, previous, existed, 0o644)
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}

	result := adapter.Result{Details: entry.Details}
	if !existed {
		zone := spec.Zone
		result.Rollback = &adapter.Rollback{
			Kind:       "dns_zone.delete",
			Adapter:    adapter.NameDNS,
			TargetKind: "dns_zone",
			TargetKey:  zone,
			Undo: func(ctx context.Context, rc *adapter.Context) error {
				_, err := a.EnsureZoneAbsent(ctx, rc, zone)
				return err
			},
		}
	}
	return result, a.record(ctx, rc, entry, nil)
}

// EnsureZoneAbsent removes the zone file
func (a *DNSAdapter) EnsureZoneAbsent(ctx context.Context, rc *adapter.Context, zone string) (adapter.Result, error) {
	path := a.zonePath(zone)
	entry := adapter.LogEntry{Adapter: adapter.NameDNS, Operation: adapter.OpDelete, TargetKind: "dns_zone", TargetKey: zone, Details: map[string]any{"path": path}}
	if rc.Would(ctx, entry) {
		return adapter.Result{}, nil
	}

	err := os.Remove(path)
	if os.IsNotExist(err) {
		entry.Details["action"] = "absent"
		return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, nil)
	}
	if err != nil {
		return adapter.Result{}, a.record(ctx, rc, entry, err)
	}
	err = a.reloadZone(ctx, zone)
	return adapter.Result{Details: entry.Details}, a.record(ctx, rc, entry, err)
}

// ListRecords reads the zone file back as records
func (a *DNSAdapter) ListRecords(ctx context.Context, rc *adapter.Context, zone string) ([]adapter.ZoneRecord, error) {
	content, err := os.ReadFile(a.zonePath(zone))
	if err != nil {
		return nil, err
	}
	rrs, err := ParseZone(zone, string(content))
	if err != nil {
		return nil, err
	}

	origin := dns.Fqdn(zone)
	records := make([]adapter.ZoneRecord, 0, len(rrs))
	for _, rr := range rrs {
		hdr := rr.Header()
		name := "@"
		if hdr.Name != origin {
			name = strings.TrimSuffix(hdr.Name, "."+origin)
		}
		rec := adapter.ZoneRecord{
			Name:  name,
			Type:  dns.TypeToString[hdr.Rrtype],
			TTL:   int(hdr.Ttl),
			Value: strings.TrimPrefix(rr.String(), hdr.String()),
		}
		switch v := rr.(type) {
		case *dns.A:
			rec.Value = v.A.String()
		case *dns.MX:
			rec.Value = v.Mx
			rec.Priority = int(v.Preference)
		case *dns.TXT:
			rec.Value = strings.Join(v.Txt, "")
		case *dns.NS:
			rec.Value = v.Ns
		}
		records = append(records, rec)
	}
	return records, nil
}
