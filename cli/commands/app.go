package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/AshkanYarmoradi/go-adm/adapters"
	"github.com/AshkanYarmoradi/go-adm/adapters/memory"
	"github.com/AshkanYarmoradi/go-adm/adapters/postgres"
	"github.com/AshkanYarmoradi/go-adm/adapters/redis"
	"github.com/AshkanYarmoradi/go-adm/cli/config"
	"github.com/AshkanYarmoradi/go-adm/logging"
	"github.com/AshkanYarmoradi/go-adm/serializer/msgpack"
	"github.com/AshkanYarmoradi/go-adm/serializer/protobuf"
)

// app holds the services built from the resolved configuration.
type app struct {
	cfg      *config.Config
	logger   adm.Logger
	gateway  adm.Gateway
	cache    adm.Cache
	backend  adm.Cache
	service  *adm.CacheService
	registry *adm.Registry

	closers []func() error
}

// resolveConfig loads adm.yaml (the --config path, or the nearest one
// above the working directory, or the defaults) and applies flag and
// environment overrides.
func resolveConfig(v *viper.Viper) (*config.Config, error) {
	var cfg *config.Config

	if path := v.GetString(keyConfig); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		_, found, err := config.FindConfig(cwd)
		switch {
		case errors.Is(err, os.ErrNotExist):
			cfg = config.DefaultConfig()
		case err != nil:
			return nil, err
		default:
			cfg = found
		}
	}

	overrides := []struct {
		key    string
		target *string
	}{
		{keyGatewayURL, &cfg.Gateway.URL},
		{keyGatewayToken, &cfg.Gateway.Token},
		{keyCacheDriver, &cfg.Cache.Driver},
		{keyCacheURL, &cfg.Cache.URL},
		{keyCacheCodec, &cfg.Cache.Codec},
	}
	for _, o := range overrides {
		if s := v.GetString(o.key); s != "" {
			*o.target = s
		}
	}

	if problems := cfg.Validate(); len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", problems[0])
	}
	return cfg, nil
}

func newLogger(verbose bool, out io.Writer) adm.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.WarnLevel)
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return logging.NewLogrus(l)
}

// newApp builds the gateway, cache and registry described by the
// configuration.
func newApp(ctx context.Context, v *viper.Viper, logOut io.Writer) (*app, error) {
	cfg, err := resolveConfig(v)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: newLogger(v.GetBool(keyVerbose), logOut),
	}

	gatewayOpts := []adm.DataGatewayOption{adm.WithGatewayLogger(a.logger)}
	if cfg.Gateway.Timeout > 0 {
		gatewayOpts = append(gatewayOpts, adm.WithTimeout(cfg.Gateway.Timeout))
	}
	if cfg.Gateway.Token != "" {
		gatewayOpts = append(gatewayOpts, adm.WithBearerToken(cfg.Gateway.Token))
	}
	a.gateway = adm.NewDataGateway(cfg.Gateway.URL, gatewayOpts...)

	cache, closeCache, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.cache, a.backend = cache, cache
	a.closers = append(a.closers, closeCache)
	a.rebuildServices()

	return a, nil
}

// rebuildServices recreates the cache service and registry around the
// current gateway and cache.
func (a *app) rebuildServices() {
	a.service = adm.NewCacheService(a.cache,
		adm.WithCachePrefix(a.cfg.Cache.Prefix),
		adm.WithOptionsStore(a.cfg.OptionsStore()),
		adm.WithCacheLogger(a.logger),
	)
	a.registry = adm.NewRegistry(adm.WithRegistryLogger(a.logger))
	adm.RegisterDefaults(a.registry, a.gateway, a.service)
}

// dao returns a DAO for name building schemaless records keyed by pkAttr.
func (a *app) dao(name, pkAttr string) *adm.DAO {
	return adm.NewDAO(name, recordFactory(name, pkAttr),
		adm.WithLocator(a.registry),
		adm.WithDAOLogger(a.logger),
	)
}

// Close releases the cache backend.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// record is a schemaless model: every attribute it is loaded with becomes
// part of its schema.
type record struct {
	adm.BaseModel
}

// recordFactory builds records for daoName keyed by pkAttr.
func recordFactory(daoName, pkAttr string) adm.ModelFactory {
	return func(data *adm.Object) adm.Model {
		r := &record{}
		r.Init(r, adm.Schema{
			DAOName:         daoName,
			PrimaryKey:      pkAttr,
			Attributes:      []string{pkAttr},
			DefaultFullMode: true,
		}, nil)
		return r.ReloadWith(data)
	}
}

// ReloadWith declares the unknown attributes of data before merging it.
func (r *record) ReloadWith(data *adm.Object) adm.Model {
	if data == nil {
		return r
	}

	schema := r.Schema()
	attrs := append([]string{}, schema.Attributes...)
	known := make(map[string]bool, len(attrs))
	current := adm.NewObject()
	for _, k := range attrs {
		known[k] = true
		if v, ok := r.Attribute(k); ok {
			current.Set(k, v)
		}
	}
	grown := false
	for _, k := range data.Keys() {
		if !known[k] {
			attrs = append(attrs, k)
			grown = true
		}
	}

	if grown {
		schema.Attributes = attrs
		r.Init(r, schema, current)
	}
	r.BaseModel.ReloadWith(data)
	return r
}

func newCodec(name string) (adm.Codec, error) {
	switch name {
	case "", config.CodecJSON:
		return adm.JSONCodec{}, nil
	case config.CodecMsgpack:
		return msgpack.NewCodec(msgpack.WithSortedMapKeys(true)), nil
	case config.CodecProtobuf:
		return protobuf.NewCodec(), nil
	default:
		return nil, fmt.Errorf("unknown cache codec %q", name)
	}
}

// openCache opens the configured cache backend. Postgres tables are
// created when missing.
func openCache(ctx context.Context, cfg config.CacheConfig) (adm.Cache, func() error, error) {
	codec, err := newCodec(cfg.Codec)
	if err != nil {
		return nil, nil, err
	}

	var backend adapters.CacheAdapter
	switch cfg.Driver {
	case config.DriverMemory, "":
		backend = memory.NewCache(memory.WithCodec(codec))

	case config.DriverRedis:
		backend, err = redis.NewAdapter(cfg.URL, redis.WithCodec(codec))
		if err != nil {
			return nil, nil, err
		}

	case config.DriverPostgres:
		opts := []postgres.Option{postgres.WithCodec(codec)}
		if cfg.Schema != "" {
			opts = append(opts, postgres.WithSchema(cfg.Schema))
		}
		if cfg.SQLDriver != "" {
			opts = append(opts, postgres.WithDriver(cfg.SQLDriver))
		}
		pg, err := postgres.NewAdapter(cfg.URL, opts...)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("failed to migrate cache tables: %w", err)
		}
		backend = pg

	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}

	return backend, backend.Close, nil
}
