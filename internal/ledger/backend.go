package ledger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/voltage-labs/contractctl/internal/config"
	"github.com/voltage-labs/contractctl/internal/kube"
)

// NewBackend builds the backend selected by cfg. Relative paths resolve against the project root,
// and credentials are read from the template context's environment.
func NewBackend(cfg config.LedgerConfig, tmplCtx config.TemplateContext, logger *slog.Logger) (Backend, error) {
	switch strings.TrimSpace(cfg.Backend) {
	case "", "file":
		path := cfg.Path
		if strings.TrimSpace(path) == "" {
			path = filepath.Join("deployments", tmplCtx.Network+".json")
		}
		b, err := NewFileBackend(tmplCtx.ResolvePath(path))
		if err != nil {
			return nil, err
		}
		return b, nil

	case "configmap":
		cm := cfg.ConfigMap
		client := kube.NewClient(tmplCtx.ResolvePath(cm.Kubeconfig), cm.Context)
		name := cm.Name
		if name == "" && tmplCtx.Network != "" {
			name = defaultConfigMapName + "-" + tmplCtx.Network
		}
		b, err := NewConfigMapBackend(client, logger, cm.Namespace, name)
		if err != nil {
			return nil, err
		}
		return b, nil

	case "sqlite":
		dsn := cfg.SQLite.DSN
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			dsn = tmplCtx.ResolvePath(dsn)
		}
		name := cfg.SQLite.Name
		if name == "" {
			name = tmplCtx.Network
		}
		b, err := NewSQLiteBackend(dsn, name)
		if err != nil {
			return nil, err
		}
		return b, nil

	case "s3":
		s3 := cfg.S3
		key := s3.Key
		if key == "" && tmplCtx.Network != "" {
			key = "deployments/" + tmplCtx.Network + ".json"
		}
		objCfg := ObjectStoreConfig{
			Endpoint: s3.Endpoint,
			Bucket:   s3.Bucket,
			Key:      key,
			Region:   s3.Region,
			UseSSL:   s3.UseSSL,
		}
		if s3.AccessKeyEnv != "" {
			objCfg.AccessKey, _ = tmplCtx.EnvMap.Lookup(s3.AccessKeyEnv)
		}
		if s3.SecretKeyEnv != "" {
			objCfg.SecretKey, _ = tmplCtx.EnvMap.Lookup(s3.SecretKeyEnv)
		}
		b, err := NewObjectStoreBackend(objCfg)
		if err != nil {
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported ledger backend %q", cfg.Backend)
	}
}
