package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	opnode "github.com/0xPolygon/cdk-opnode"
	"github.com/0xPolygon/cdk-opnode/common"
	"github.com/0xPolygon/cdk-opnode/config"
	"github.com/0xPolygon/cdk-opnode/derive"
	"github.com/0xPolygon/cdk-opnode/driver"
	"github.com/0xPolygon/cdk-opnode/engine"
	"github.com/0xPolygon/cdk-opnode/l1"
	"github.com/0xPolygon/cdk-opnode/log"
	"github.com/0xPolygon/cdk-opnode/p2p"
	"github.com/0xPolygon/cdk-opnode/rollup"
	"github.com/0xPolygon/cdk-opnode/rpc"
	"github.com/0xPolygon/cdk-opnode/safedb"
	"github.com/0xPolygon/cdk-opnode/sequencer"
	jRPC "github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func start(cliCtx *cli.Context) error {
	c, err := config.Load(cliCtx)
	if err != nil {
		return err
	}

	log.Init(c.Log)

	if c.Log.Environment == log.EnvironmentDevelopment {
		opnode.PrintVersion(os.Stdout)
		log.Info("Starting application")
	} else if c.Log.Environment == log.EnvironmentProduction {
		log.Infow("Starting application", opnode.GetVersion().LogFields()...)
	}

	rollupCfg, err := c.LoadRollupConfig()
	if err != nil {
		return err
	}
	log.Infof("Rollup config: %s", rollupCfg.Description())

	ctx, stop := signal.NotifyContext(cliCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	components := cliCtx.StringSlice(config.FlagComponents)
	n, err := newNode(ctx, c, rollupCfg, components)
	if err != nil {
		return err
	}
	defer n.close()

	err = n.run(ctx)
	log.Info("terminating application gracefully...")
	return err
}

// node holds the components of a running rollup node.
type node struct {
	engineClient *engine.Client
	l1Client     *ethclient.Client
	safeDB       *safedb.SafeDB
	driver       *driver.Driver
	rpcServer    *jRPC.Server
}

func newNode(ctx context.Context, c *config.Config, rollupCfg *rollup.Config, components []string) (*node, error) {
	n := &node{}
	var err error

	n.engineClient, err = engine.Dial(ctx, c.Engine, rollupCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to dial execution engine %s: %w", c.Engine.URL, err)
	}
	n.l1Client, err = ethclient.DialContext(ctx, c.L1.URL)
	if err != nil {
		n.close()
		return nil, fmt.Errorf("failed to dial L1 node %s: %w", c.L1.URL, err)
	}

	finalized, err := driver.InitialHead(ctx, n.engineClient, rollupCfg)
	if err != nil {
		n.close()
		return nil, err
	}
	finalizedEpoch := finalized.L1Origin
	finalizedEpoch.SequenceNumber = finalized.SequenceNumber
	log.Infow("starting from finalized head", "head", finalized.BlockInfo.String(), "epoch", finalizedEpoch.String())

	c.Driver.ELSync = c.Engine.IsELSync()
	engineDriver := engine.NewDriver(rollupCfg, n.engineClient, finalized.BlockInfo, finalizedEpoch, c.Driver.ELSync)
	pipeline := derive.NewPipeline(rollupCfg, n.engineClient, finalized.BlockInfo, finalizedEpoch)
	watcher := l1.NewWatcher(c.L1, rollupCfg, n.l1Client)
	feed := p2p.NewFeed(c.P2P, rollupCfg)

	// interfaces stay nil when a component is disabled
	var seq driver.Sequencer
	if common.IsNeeded([]string{common.SEQUENCER}, components) {
		seq = sequencer.New(c.Sequencer, rollupCfg, engineDriver, pipeline.AttributesBuilder(), pipeline.State())
	}
	var listener safedb.Listener
	var safeHeads rpc.SafeHeadReader
	if c.SafeDB.DBPath != "" {
		n.safeDB, err = safedb.New(log.WithFields("module", "safedb"), c.SafeDB.DBPath)
		if err != nil {
			n.close()
			return nil, fmt.Errorf("failed to open safe head database: %w", err)
		}
		listener = n.safeDB
		safeHeads = n.safeDB
	}

	n.driver = driver.New(c.Driver, rollupCfg, engineDriver, pipeline, watcher, seq, feed, n.engineClient, listener)

	if common.IsNeeded([]string{common.RPC}, components) {
		n.rpcServer = createRPC(c.RPC, rollupCfg, n.driver, safeHeads, feed)
	}
	return n, nil
}

func (n *node) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := n.driver.Run(ctx); err != nil {
			return fmt.Errorf("driver stopped: %w", err)
		}
		return nil
	})
	if n.rpcServer != nil {
		g.Go(func() error {
			if err := n.rpcServer.Start(); err != nil {
				return fmt.Errorf("rpc server stopped: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return n.rpcServer.Stop()
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *node) close() {
	if n.safeDB != nil {
		if err := n.safeDB.Close(); err != nil {
			log.Warnf("error closing safe head database: %s", err)
		}
	}
	if n.l1Client != nil {
		n.l1Client.Close()
	}
	if n.engineClient != nil {
		n.engineClient.Close()
	}
}

func createRPC(
	cfg jRPC.Config,
	rollupCfg *rollup.Config,
	status rpc.SyncStatuser,
	safeHeads rpc.SafeHeadReader,
	publisher rpc.PayloadPublisher,
) *jRPC.Server {
	logger := log.WithFields("module", common.RPC)
	services := []jRPC.Service{
		{
			Name:    rpc.OPTIMISM,
			Service: rpc.NewOptimismEndpoints(logger, cfg.ReadTimeout.Duration, rollupCfg, status, safeHeads),
		},
		{
			Name:    rpc.ADMIN,
			Service: rpc.NewAdminEndpoints(logger, publisher),
		},
	}

	return jRPC.NewServer(cfg, services, jRPC.WithLogger(logger.GetSugaredLogger()))
}
