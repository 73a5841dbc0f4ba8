package migration

import (
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/adapter"
	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
	"go_hostpanel/internal/provisioning"
)

const maxIdentifier = 64

func (r *Runner) runHandler(ctx context.Context, job *model.MigrationJob, step *model.MigrationStep) (map[string]any, error) {
	src, err := decodeSource(job)
	if err != nil {
		return nil, err
	}
	if step.Name == model.StepValidateSourceHost {
		return r.validateSourceHost(ctx, job, src)
	}

	acc := accountOf(job, step.AccountID)
	if acc == nil {
		return nil, errs.Newf(errs.KindNotFound, "migration account %s not found", step.AccountID)
	}
	meta, err := decodeMetadata(acc)
	if err != nil {
		return nil, err
	}

	switch step.Name {
	case model.StepProvisionTargetEnv:
		return r.provisionTargetEnv(ctx, job, step, acc, meta, src)
	case model.StepRsyncHomeDirectory:
		return r.rsyncHomeDirectory(ctx, job, step, acc, meta, src)
	case model.StepImportDatabases:
		return r.importDatabases(ctx, job, step, acc, meta)
	}
	return nil, errs.Newf(errs.KindInvalidArgument, "unknown migration step %q", step.Name)
}

func accountOf(job *model.MigrationJob, id string) *model.MigrationAccount {
	for i := range job.Accounts {
		if job.Accounts[i].ID == id {
			return &job.Accounts[i]
		}
	}
	return nil
}

// validateSourceHost connects once and checks every account's home
// directory exists
func (r *Runner) validateSourceHost(ctx context.Context, job *model.MigrationJob, src SourceConfig) (map[string]any, error) {
	homes := make([]string, 0, len(job.Accounts))
	for i := range job.Accounts {
		meta, err := decodeMetadata(&job.Accounts[i])
		if err != nil {
			return nil, err
		}
		homes = append(homes, shellQuote(r.sourceHome(src, &job.Accounts[i], meta)))
	}
	command := "true"
	if len(homes) > 0 {
		command = "for d in " + strings.Join(homes, " ") + `; do [ -d "$d" ] || echo "$d"; done`
	}

	out, err := r.remote.Run(ctx, src, command)
	if err != nil {
		if errs.KindOf(err) != "" {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindAdapterApplyFailed, "source host validation failed", err).
			WithDetail("host", src.Host).
			WithDetail("stderr", out.Stderr)
	}

	var missing []string
	for _, line := range strings.Split(strings.TrimSpace(out.Stdout), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			missing = append(missing, line)
		}
	}
	if len(missing) > 0 {
		return nil, errs.New(errs.KindNotFound, "source home directories missing").
			WithDetail("host", src.Host).
			WithDetail("missing", missing)
	}
	return map[string]any{"host": src.Host, "serverVersion": out.ServerVersion, "accounts": len(job.Accounts)}, nil
}

// derivedPlanName is migrated-<job8>-<user>, capped at the column width
func derivedPlanName(jobID, username string) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	name := "migrated-" + short + "-" + username
	if len(name) > maxIdentifier {
		name = name[:maxIdentifier]
	}
	return name
}

func (r *Runner) derivePlan(ctx context.Context, job *model.MigrationJob, acc *model.MigrationAccount, meta AccountMetadata, src SourceConfig) (string, error) {
	name := derivedPlanName(job.ID, acc.SourceUsername)
	if _, err := r.store.GetPlan(ctx, name); err == nil {
		return name, nil
	} else if !errs.IsKind(err, errs.KindNotFound) {
		return "", err
	}

	limits := meta.Limits
	if limits == nil {
		limits = src.Limits
	}
	plan := &model.HostingPlan{Name: name, Derived: true, MaxDatabases: len(meta.Databases)}
	if limits != nil {
		plan.DiskQuotaMB = limits.DiskQuotaMB
		plan.MaxDatabases = limits.MaxDatabases
		plan.MaxMailboxes = limits.MaxMailboxes
		plan.MailboxQuotaMB = limits.MailboxQuotaMB
		plan.MaxFTPAccounts = limits.MaxFTPAccounts
		plan.PHPVersion = limits.PHPVersion
	}
	if err := r.store.SavePlan(ctx, plan); err != nil {
		return "", err
	}
	r.logger.WithField("plan", name).Info("derived hosting plan from source limits")
	return name, nil
}

// provisionTargetEnv makes sure the account has a provisioned target service
func (r *Runner) provisionTargetEnv(ctx context.Context, job *model.MigrationJob, step *model.MigrationStep, acc *model.MigrationAccount, meta AccountMetadata, src SourceConfig) (map[string]any, error) {
	planName := acc.TargetPlanName
	if planName == "" {
		planName = job.TargetPlanName
	}
	if planName == "" {
		derived, err := r.derivePlan(ctx, job, acc, meta, src)
		if err != nil {
			return nil, err
		}
		planName = derived
	} else if _, err := r.store.GetPlan(ctx, planName); err != nil {
		return nil, err
	}
	acc.TargetPlanName = planName

	if acc.TargetServiceID == nil {
		svc, err := r.store.FindServiceByDomain(ctx, acc.SourcePrimaryDomain)
		switch {
		case err == nil:
			if svc.CustomerID != acc.TargetCustomerID {
				return nil, errs.Newf(errs.KindAlreadyExists, "domain %s belongs to another customer", acc.SourcePrimaryDomain)
			}
		case errs.IsKind(err, errs.KindNotFound):
			svc, err = r.provisioner.CreateService(ctx, provisioning.CreateRequest{
				CustomerID:    acc.TargetCustomerID,
				PrimaryDomain: acc.SourcePrimaryDomain,
				PlanName:      planName,
			})
			if err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
		id := svc.ID
		acc.TargetServiceID = &id
	}
	if err := r.store.SaveAccount(ctx, acc); err != nil {
		return nil, err
	}

	res, err := r.provisioner.Provision(ctx, *acc.TargetServiceID, provisioning.ProvisionOptions{DryRun: job.DryRun, TraceID: step.ID})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"serviceId":     *acc.TargetServiceID,
		"planName":      planName,
		"alreadyActive": res.AlreadyDone,
		"dryRun":        res.DryRun,
	}, nil
}

func (r *Runner) targetService(ctx context.Context, acc *model.MigrationAccount) (*model.HostingService, provisioning.Names, error) {
	if acc.TargetServiceID == nil {
		return nil, provisioning.Names{}, errs.Newf(errs.KindInvalidState, "account %s has no target service yet", acc.SourceUsername)
	}
	svc, err := r.store.GetService(ctx, *acc.TargetServiceID)
	if err != nil {
		return nil, provisioning.Names{}, err
	}
	// dry-run jobs never store the derived names on the service
	names := provisioning.DeriveNames(svc.PrimaryDomain, r.provCfg)
	if svc.HomeDir != "" {
		names.HomeDir = svc.HomeDir
		names.SystemUser = svc.SystemUser
		names.MySQLUser = svc.MySQLUser
	}
	return svc, names, nil
}

func (r *Runner) adapterContext(job *model.MigrationJob, step *model.MigrationStep, svc *model.HostingService) *adapter.Context {
	logger := r.logger.WithFields(logrus.Fields{"jobId": job.ID, "stepId": step.ID, "serviceId": svc.ID})
	return &adapter.Context{
		DryRun:    job.DryRun || r.provCfg.DryRun,
		ServiceID: strconv.Itoa(svc.ID),
		TraceID:   step.ID,
		Sink:      provisioning.NewServiceLogger(r.store, svc.ID, step.ID, logger),
		Logger:    logger,
	}
}

// rsyncHomeDirectory copies the source home into the target home
func (r *Runner) rsyncHomeDirectory(ctx context.Context, job *model.MigrationJob, step *model.MigrationStep, acc *model.MigrationAccount, meta AccountMetadata, src SourceConfig) (map[string]any, error) {
	svc, names, err := r.targetService(ctx, acc)
	if err != nil {
		return nil, err
	}

	spec := RsyncSpec{
		Source:    src,
		SourceDir: r.sourceHome(src, acc, meta),
		TargetDir: names.HomeDir,
		Owner:     names.SystemUser,
		DryRun:    job.DryRun,
	}
	if src.Auth() == AuthKey {
		keyFile, cleanup, err := writeTempKey(src.PrivateKey)
		defer cleanup()
		if err != nil {
			return nil, err
		}
		spec.KeyFile = keyFile
	}

	cmd := BuildRsyncCommand(r.cfg, spec)
	rc := r.adapterContext(job, step, svc)
	out, err := r.exec.Run(ctx, cmd)

	entry := adapter.LogEntry{
		Adapter:    "rsync",
		Operation:  adapter.OpCreate,
		TargetKind: "home_directory",
		TargetKey:  spec.TargetDir,
		Success:    err == nil,
		Details:    map[string]any{"sourcePath": spec.SourceDir, "exitCode": out.ExitCode, "duration": out.Duration.String()},
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	rc.Log(ctx, entry)

	if err != nil {
		if errs.IsKind(err, errs.KindTimedOut) {
			return nil, err
		}
		return nil, errs.Wrap(errs.KindAdapterApplyFailed, "rsync exited with an error", err).
			WithDetail("exitCode", out.ExitCode).
			WithDetail("stdout", out.Stdout).
			WithDetail("stderr", out.Stderr)
	}
	return map[string]any{"sourcePath": spec.SourceDir, "targetPath": spec.TargetDir, "dryRun": spec.DryRun}, nil
}

// TargetDatabaseName maps a source database to <mysqlUser>_<suffix>. A
// leading "<sourceUser>_" is dropped from the source name.
func TargetDatabaseName(mysqlUser, sourceUser, name string) string {
	suffix := strings.TrimPrefix(strings.ToLower(name), strings.ToLower(sourceUser)+"_")
	var b strings.Builder
	for _, c := range suffix {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	suffix = b.String()
	if suffix == "" {
		suffix = "db"
	}
	full := mysqlUser + "_" + suffix
	if len(full) > maxIdentifier {
		full = full[:maxIdentifier]
	}
	return full
}

// importDatabases checks the plan limit before touching MySQL, then
// creates and loads each database
func (r *Runner) importDatabases(ctx context.Context, job *model.MigrationJob, step *model.MigrationStep, acc *model.MigrationAccount, meta AccountMetadata) (map[string]any, error) {
	svc, names, err := r.targetService(ctx, acc)
	if err != nil {
		return nil, err
	}
	plan, err := r.store.GetPlan(ctx, svc.PlanName)
	if err != nil {
		return nil, err
	}

	requested := len(meta.Databases)
	if requested > plan.MaxDatabases {
		return nil, errs.New(errs.KindQuotaExceeded, "database_limit_exceeded").
			WithDetail("maxDbs", plan.MaxDatabases).
			WithDetail("requested", requested)
	}
	if requested == 0 {
		return map[string]any{"imported": []string{}}, nil
	}
	for _, db := range meta.Databases {
		if db.DumpPath == "" {
			return nil, errs.Newf(errs.KindInvalidArgument, "database %s has no dump path", db.Name)
		}
	}

	rc := r.adapterContext(job, step, svc)
	imported := make([]string, 0, requested)
	for _, db := range meta.Databases {
		target := TargetDatabaseName(names.MySQLUser, acc.SourceUsername, db.Name)
		if _, err := r.adapters.MySQL.EnsureDatabasePresent(ctx, rc, adapter.DatabaseSpec{Name: target, Owner: names.MySQLUser}); err != nil {
			return nil, errs.Wrap(errs.KindAdapterApplyFailed, "create database "+target, err).
				WithDetail("database", target).
				WithDetail("imported", imported)
		}
		dump := db.DumpPath
		if !path.IsAbs(dump) {
			dump = path.Join(names.HomeDir, dump)
		}
		if _, err := r.adapters.MySQL.ImportDump(ctx, rc, adapter.DumpSpec{Database: target, Path: dump}); err != nil {
			return nil, errs.Wrap(errs.KindAdapterApplyFailed, "import into "+target, err).
				WithDetail("database", target).
				WithDetail("dump", dump).
				WithDetail("imported", imported)
		}
		imported = append(imported, target)
	}
	return map[string]any{"imported": imported}, nil
}
