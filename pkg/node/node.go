// Package node is the composition root (component A6): it wires the
// chain, mempool, peer registry, gossip broadcaster, consensus
// resolver, miner, storage and HTTP API together into one running node
// and owns their background goroutines.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wahahalyy/blockchain-simulator/pkg/api"
	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/chain"
	"github.com/wahahalyy/blockchain-simulator/pkg/config"
	"github.com/wahahalyy/blockchain-simulator/pkg/consensus"
	"github.com/wahahalyy/blockchain-simulator/pkg/discovery"
	"github.com/wahahalyy/blockchain-simulator/pkg/gossip"
	"github.com/wahahalyy/blockchain-simulator/pkg/logger"
	"github.com/wahahalyy/blockchain-simulator/pkg/mempool"
	"github.com/wahahalyy/blockchain-simulator/pkg/miner"
	"github.com/wahahalyy/blockchain-simulator/pkg/peer"
	"github.com/wahahalyy/blockchain-simulator/pkg/storage"
	"github.com/wahahalyy/blockchain-simulator/pkg/wallet"
)

// Node owns every long-lived component of a running blockchain node
// and the goroutines that drive them.
type Node struct {
	cfg    config.Config
	log    *logger.Logger
	store  storage.Store
	chain  *chain.Chain
	pool   *mempool.Pool
	peers  *peer.Registry
	gossip *gossip.Broadcaster
	resolv *consensus.Resolver
	miner  *miner.Miner
	disc   discovery.Discoverer
	client *api.Client
	server *api.Server
	http   *http.Server

	wallet *wallet.Wallet

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a Node from cfg, loading any persisted chain/peer/wallet
// state and falling back to a fresh genesis block when nothing was
// persisted yet.
func New(cfg config.Config, log *logger.Logger) (*Node, error) {
	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	w, err := loadOrCreateWallet(store)
	if err != nil {
		return nil, fmt.Errorf("load wallet: %w", err)
	}

	c, err := loadOrCreateChain(store, w.Address())
	if err != nil {
		return nil, fmt.Errorf("load chain: %w", err)
	}

	self := cfg.SelfAddress()
	registry := peer.NewRegistry(self)
	if persisted, err := store.LoadPeers(); err == nil {
		registry.Restore(persisted.Nodes)
	}
	if cfg.SeedURL != "" {
		registry.Add(cfg.SeedURL)
	}

	pool := mempool.New()
	client := api.NewClient()
	broadcaster := gossip.NewBroadcaster(client)
	resolver := consensus.New(client)

	n := &Node{
		cfg:    cfg,
		log:    log,
		store:  store,
		chain:  c,
		pool:   pool,
		peers:  registry,
		gossip: broadcaster,
		resolv: resolver,
		client: client,
		wallet: w,
		disc:   discovery.New(cfg.Port),
	}

	n.miner = miner.New(c, pool, w.Address(), n.onBlockMined)
	if cfg.AutoMine {
		n.miner.SetMode(miner.ModeContinuous)
	}

	n.server = api.NewServer(api.Deps{
		Self:                self,
		Chain:               c,
		Pool:                pool,
		Peers:               registry,
		Broadcaster:         broadcaster,
		Resolver:            resolver,
		Miner:               n.miner,
		Store:               store,
		Client:              client,
		Log:                 log,
		DefaultMinerAddress: w.Address(),
	})

	return n, nil
}

func loadOrCreateWallet(store storage.Store) (*wallet.Wallet, error) {
	rec, err := store.LoadWallet()
	if err != nil {
		return nil, err
	}
	if rec.PrivateKey != "" {
		return wallet.FromRecord(rec)
	}
	w, err := wallet.New()
	if err != nil {
		return nil, err
	}
	return w, store.SaveWallet(w.ToRecord())
}

func loadOrCreateChain(store storage.Store, minerAddress string) (*chain.Chain, error) {
	snap, err := store.LoadChain()
	if err != nil {
		return nil, err
	}
	if len(snap.Chain) == 0 {
		c := chain.NewGenesis(minerAddress, time.Now().Unix())
		return c, store.SaveChain(storage.ChainSnapshot{
			Chain:     c.Blocks(),
			UTXOSet:   c.UTXOs().Snapshot(),
			Timestamp: time.Now().Unix(),
		})
	}
	return chain.Restore(snap.Chain, snap.UTXOSet)
}

// Start launches the HTTP server and every background loop: health
// checks, periodic consensus resolution, mining and LAN discovery. It
// returns once they are launched, without waiting for the listener to
// bind (a listen error is only logged); background work continues
// until Shutdown is called.
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.http = &http.Server{Addr: fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port), Handler: n.server.Router()}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.log.Info("listening on %s", n.http.Addr)
		if err := n.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.log.Error("http server: %v", err)
		}
	}()

	n.wg.Add(1)
	go n.runHealthLoop(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		consensus.RunPeriodic(ctx, func(c context.Context) (bool, error) {
			replaced, err := n.resolv.Resolve(c, n.chain, n.peers.Healthy())
			if replaced {
				n.PersistChain()
			}
			return replaced, err
		})
	}()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.miner.Run(ctx)
	}()

	if err := n.disc.Start(ctx, n.onPeerDiscovered); err != nil {
		n.log.Warn("LAN discovery disabled: %v", err)
	}

	if n.cfg.SeedURL != "" {
		n.registerWithSeed(ctx)
	}

	return nil
}

// Shutdown stops every background loop and the HTTP server, waiting
// for them to exit.
func (n *Node) Shutdown(ctx context.Context) error {
	if n.cancel != nil {
		n.cancel()
	}
	_ = n.disc.Stop()
	var err error
	if n.http != nil {
		err = n.http.Shutdown(ctx)
	}
	n.wg.Wait()
	return err
}

func (n *Node) runHealthLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(peer.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, url := range n.peers.All() {
				if !n.peers.DueForCheck(url, now) {
					continue
				}
				probeCtx, cancel := context.WithTimeout(ctx, peer.HealthCheckTimeout)
				ok := n.client.ProbeHealth(probeCtx, url)
				cancel()
				if ok {
					n.peers.RecordSuccess(url, now)
				} else {
					n.peers.RecordFailure(url, now)
				}
			}
		}
	}
}

// onBlockMined persists the new tip and gossips it to every healthy peer,
// exactly as a block arriving over HTTP would be relayed onward.
func (n *Node) onBlockMined(b *block.Block) {
	n.PersistChain()
	n.GossipBlock(context.Background(), b)
}

// PersistChain saves the chain's current blocks and derived UTXO set,
// logging rather than propagating a failure so a slow disk never
// stalls consensus liveness (spec.md §9 open question 5). Exported so
// the CLI can persist after a manually mined block or an adopted chain,
// the same way the HTTP API and the background miner do.
func (n *Node) PersistChain() {
	snap := storage.ChainSnapshot{
		Chain:     n.chain.Blocks(),
		UTXOSet:   n.chain.UTXOs().Snapshot(),
		Timestamp: time.Now().Unix(),
	}
	if err := n.store.SaveChain(snap); err != nil {
		n.log.Error("persist chain: %v", err)
	}
}

// GossipBlock broadcasts b to every healthy peer as this node
// originating the message. Exported so the CLI's manual-mine command
// announces a block the same way the background miner does.
func (n *Node) GossipBlock(ctx context.Context, b *block.Block) {
	raw, err := json.Marshal(b)
	if err != nil {
		n.log.Error("marshal block for gossip: %v", err)
		return
	}
	msg := gossip.Message{ID: b.Hash, Kind: gossip.KindBlock, Origin: n.Self(), Payload: raw}
	n.gossip.Broadcast(ctx, msg, n.peers.Healthy(), true, time.Now())
}

func (n *Node) onPeerDiscovered(addr string) {
	if n.peers.Add(addr) {
		n.log.Info("discovered peer %s", addr)
	}
}

func (n *Node) registerWithSeed(ctx context.Context) {
	registerCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := n.client.RegisterWith(registerCtx, n.cfg.SeedURL, n.Self()); err != nil {
		n.log.Warn("register with seed %s: %v", n.cfg.SeedURL, err)
		return
	}
	n.peers.Add(n.cfg.SeedURL)
}

// Wallet returns the node's default wallet, used by the CLI for
// sending transactions and reporting balances.
func (n *Node) Wallet() *wallet.Wallet { return n.wallet }

// Chain exposes the node's chain for the CLI's read-only views.
func (n *Node) Chain() *chain.Chain { return n.chain }

// Pool exposes the node's mempool for the CLI's read-only views.
func (n *Node) Pool() *mempool.Pool { return n.pool }

// Peers exposes the node's peer registry for the CLI's network view.
func (n *Node) Peers() *peer.Registry { return n.peers }

// Miner exposes the node's miner for the CLI's mining controls.
func (n *Node) Miner() *miner.Miner { return n.miner }

// Resolver exposes the node's consensus resolver for the CLI's
// manual-resolve command.
func (n *Node) Resolver() *consensus.Resolver { return n.resolv }

// Client exposes the node's outbound HTTP client for the CLI's
// register/broadcast commands.
func (n *Node) Client() *api.Client { return n.client }

// Self returns the node's own advertised address.
func (n *Node) Self() string { return n.cfg.SelfAddress() }

// Store exposes the node's persistence layer for the CLI's
// wallet-management commands.
func (n *Node) Store() storage.Store { return n.store }
