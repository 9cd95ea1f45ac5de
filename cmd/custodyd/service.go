package main

import (
	"context"
	"io"
	"net/http"

	superpool "github.com/rafamiziara/superpool-sub007"
	"github.com/rafamiziara/superpool-sub007/api"
	"github.com/rafamiziara/superpool-sub007/audit"
	"github.com/rafamiziara/superpool-sub007/cron"
	"github.com/rafamiziara/superpool-sub007/errors"
	"github.com/rafamiziara/superpool-sub007/gateway/devchain"
	"github.com/rafamiziara/superpool-sub007/gateway/ethgw"
	"github.com/rafamiziara/superpool-sub007/store"
	"github.com/rafamiziara/superpool-sub007/store/badgerdb"
	"github.com/rafamiziara/superpool-sub007/store/iavl"
	"github.com/rafamiziara/superpool-sub007/x/multisig"
	"github.com/rafamiziara/superpool-sub007/x/multisig/sqlstore"
	"github.com/tendermint/tendermint/libs/log"
)

// custodyGateway is implemented by both gateway flavours.
type custodyGateway interface {
	multisig.ChainGateway
	Domain() multisig.Domain
}

// service is a fully wired coordinator with its background tasks.
type service struct {
	coord     *multisig.Coordinator
	scheduler *cron.Scheduler
	router    http.Handler
	closers   []io.Closer
}

// newService opens every store and connection described by conf. Close the
// returned service to release them.
func newService(ctx context.Context, conf *Configuration, logger log.Logger) (_ *service, err error) {
	s := &service{}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	kv, err := s.openKV(conf.Store, logger)
	if err != nil {
		return nil, errors.Wrap(err, "store")
	}

	records, err := s.openRecords(ctx, conf.Store, kv)
	if err != nil {
		return nil, errors.Wrap(err, conf.Store.Backend)
	}

	gw, err := s.openGateway(ctx, conf.Chain, kv)
	if err != nil {
		return nil, errors.Wrap(err, "chain")
	}

	journal, err := s.openJournal(conf.Audit, logger)
	if err != nil {
		return nil, errors.Wrap(err, "audit")
	}

	s.coord, err = multisig.NewCoordinator(multisig.Deps{
		Store:   records,
		Gateway: gw,
		Journal: journal,
		Domain:  gw.Domain(),
		Config:  conf.Multisig,
	})
	if err != nil {
		return nil, errors.Wrap(err, "coordinator")
	}

	s.scheduler = cron.NewScheduler(kv)
	if err := s.scheduler.Register(ctx, "expiry-sweep", conf.Cron.SweepInterval, s.coord.Sweeper()); err != nil {
		return nil, err
	}
	if err := s.scheduler.Register(ctx, "reconcile", conf.Cron.ReconcileInterval, s.coord.Reconciler()); err != nil {
		return nil, err
	}

	auth := api.NewStaticKeyAuthenticator(conf.Auth)
	s.router = api.NewRouter(s.coord, auth, logger, conf.Server.MaxBodyBytes)

	domain := gw.Domain()
	superpool.GetLogger(ctx).Info("custody service ready",
		"chain", conf.Chain.Mode,
		"chain_id", domain.ChainID.String(),
		"account", domain.Account.Hex(),
		"store", conf.Store.Backend)
	return s, nil
}

func (s *service) openRecords(ctx context.Context, conf StoreConfig, kv store.KVStore) (multisig.RecordStore, error) {
	var (
		db  *sqlstore.Store
		err error
	)
	switch conf.Backend {
	case storePostgres:
		db, err = sqlstore.Open(conf.DSN)
	case storeSQLite:
		db, err = sqlstore.OpenSQLite(conf.DSN)
	default:
		return multisig.NewKVRecordStore(kv), nil
	}
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db)
	if err := db.Migrate(ctx); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	return db, nil
}

// openKV returns the KV store used by the scheduler and, unless records
// live in a SQL database, by the record store and the dev chain receipts.
func (s *service) openKV(conf StoreConfig, logger log.Logger) (store.KVStore, error) {
	if conf.Backend == storeMemory || conf.Dir == "" {
		return store.NewMemStore(), nil
	}
	db, err := badgerdb.Open(conf.Dir, logger)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db)
	return db, nil
}

func (s *service) openGateway(ctx context.Context, conf ChainConfig, kv store.KVStore) (custodyGateway, error) {
	if conf.Mode == chainRPC {
		return ethgw.Dial(ctx, conf.RPC)
	}
	state := iavl.MockCommitStore()
	if conf.StateDir != "" {
		var err error
		if state, err = iavl.NewCommitStore(conf.StateDir, "devchain"); err != nil {
			return nil, err
		}
	}
	return devchain.New(conf.Dev, state, kv)
}

func (s *service) openJournal(conf AuditConfig, logger log.Logger) (audit.Journal, error) {
	logged := audit.NewLogJournal(logger.With("module", "audit"))
	if conf.SQLite == "" {
		return logged, nil
	}
	db, err := audit.OpenSQLite(conf.SQLite)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db)
	return audit.Multi{logged, db}, nil
}

// Close releases all resources in reverse order of their acquisition.
func (s *service) Close() error {
	var errs error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = errors.Append(errs, s.closers[i].Close())
	}
	s.closers = nil
	return errs
}
