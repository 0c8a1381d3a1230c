// Package api implements the node's HTTP surface (component A4): every
// route in the external-interface table, backed directly by the chain,
// mempool, peer registry, gossip broadcaster, consensus resolver and
// miner packages.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/wahahalyy/blockchain-simulator/pkg/block"
	"github.com/wahahalyy/blockchain-simulator/pkg/chain"
	"github.com/wahahalyy/blockchain-simulator/pkg/consensus"
	"github.com/wahahalyy/blockchain-simulator/pkg/errs"
	"github.com/wahahalyy/blockchain-simulator/pkg/gossip"
	"github.com/wahahalyy/blockchain-simulator/pkg/logger"
	"github.com/wahahalyy/blockchain-simulator/pkg/mempool"
	"github.com/wahahalyy/blockchain-simulator/pkg/miner"
	"github.com/wahahalyy/blockchain-simulator/pkg/peer"
	"github.com/wahahalyy/blockchain-simulator/pkg/storage"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
)

// Deps are every collaborator the HTTP layer reads from or mutates.
type Deps struct {
	Self        string
	Chain       *chain.Chain
	Pool        *mempool.Pool
	Peers       *peer.Registry
	Broadcaster *gossip.Broadcaster
	Resolver    *consensus.Resolver
	Miner       *miner.Miner
	Store       storage.Store
	Client      *Client
	Log         *logger.Logger
	// DefaultMinerAddress is credited by GET /mine when the caller omits
	// miner_address, matching the original node's fall-back to its own
	// default wallet.
	DefaultMinerAddress string
}

// Server is the gorilla/mux-backed HTTP API.
type Server struct {
	router *mux.Router
	deps   Deps
}

// NewServer builds a Server with every route wired to deps.
func NewServer(deps Deps) *Server {
	s := &Server{router: mux.NewRouter(), deps: deps}
	s.setupRoutes()
	return s
}

// Router exposes the underlying mux.Router for http.ListenAndServe.
func (s *Server) Router() *mux.Router { return s.router }

func (s *Server) setupRoutes() {
	r := s.router
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/chain", s.getChain).Methods(http.MethodGet)
	r.HandleFunc("/block/{index}", s.getBlock).Methods(http.MethodGet)
	r.HandleFunc("/transaction/{txid}", s.getTransaction).Methods(http.MethodGet)
	r.HandleFunc("/balance/{address}", s.getBalance).Methods(http.MethodGet)

	r.HandleFunc("/nodes/register", s.registerNodes).Methods(http.MethodPost)
	r.HandleFunc("/nodes/sync", s.syncNodes).Methods(http.MethodPost)
	r.HandleFunc("/nodes/list", s.listNodes).Methods(http.MethodGet)
	r.HandleFunc("/nodes/status/{addr}", s.nodeStatus).Methods(http.MethodGet)
	r.HandleFunc("/nodes/check/{addr}", s.checkNode).Methods(http.MethodPost)
	r.HandleFunc("/nodes/resolve", s.resolveNodes).Methods(http.MethodGet)

	r.HandleFunc("/mempool", s.getMempool).Methods(http.MethodGet)
	r.HandleFunc("/transaction/new", s.newTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transaction/broadcast", s.broadcastTransaction).Methods(http.MethodPost)
	r.HandleFunc("/block/receive", s.receiveBlock).Methods(http.MethodPost)

	r.HandleFunc("/mine", s.mine).Methods(http.MethodGet)
	r.HandleFunc("/auto_mining", s.toggleAutoMining).Methods(http.MethodPost)
	r.HandleFunc("/mining/mode", s.setMiningMode).Methods(http.MethodPost)
	r.HandleFunc("/mining/status", s.miningStatus).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errs.HTTPStatus(errs.KindOf(err)), map[string]string{"error": err.Error()})
}

// hostOf strips the port from an address so peer comparisons ignore it,
// matching spec.md's "source address compared host-only" rule.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"block_height": s.deps.Chain.Len(),
		"mempool_size": s.deps.Pool.Size(),
		"peers_count":  len(s.deps.Peers.All()),
		"auto_mining":  s.deps.Miner.Mode() != miner.ModeDisabled,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) getChain(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chain":      s.deps.Chain.Blocks(),
		"length":     s.deps.Chain.Len(),
		"difficulty": s.deps.Chain.Difficulty(),
	})
}

func (s *Server) getBlock(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeError(w, errs.New(errs.Malformed, "invalid block index"))
		return
	}
	b, err := s.deps.Chain.BlockAt(idx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	txid := mux.Vars(r)["txid"]
	for _, b := range s.deps.Chain.Blocks() {
		for _, tx := range b.Transactions {
			if tx.TxID == txid {
				writeJSON(w, http.StatusOK, map[string]interface{}{"transaction": tx, "status": "confirmed", "block_index": b.Index})
				return
			}
		}
	}
	if tx, ok := s.deps.Pool.Get(txid); ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{"transaction": tx, "status": "pending"})
		return
	}
	writeError(w, errs.New(errs.UnknownBlockIndex, "transaction %s not found", txid))
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address,
		"balance": s.deps.Chain.UTXOs().Balance(address),
	})
}

func (s *Server) registerNodes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nodes []string `json:"nodes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.Malformed, err, "decode request"))
		return
	}

	var added []string
	for _, node := range body.Nodes {
		if s.deps.Peers.Add(node) {
			added = append(added, node)
		}
	}
	s.persistPeers()

	if len(added) > 0 {
		s.gossipPeerList(r.Context(), true)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"newly_added":   added,
		"current_nodes": s.deps.Peers.All(),
	})
}

func (s *Server) syncNodes(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Nodes      []string `json:"nodes"`
		MessageID  string   `json:"message_id"`
		SourceNode string   `json:"source_node"`
		Timestamp  int64    `json:"timestamp"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.Malformed, err, "decode request"))
		return
	}

	var newlyAdded bool
	for _, node := range body.Nodes {
		if s.deps.Peers.Add(node) {
			newlyAdded = true
		}
	}
	s.persistPeers()

	payload, _ := json.Marshal(body.Nodes)
	msg := gossip.Message{ID: body.MessageID, Kind: gossip.KindPeerList, Origin: body.SourceNode, Payload: payload}
	relayTo := s.deps.Peers.HealthyExcluding(hostOf(body.SourceNode))
	s.deps.Broadcaster.Broadcast(r.Context(), msg, relayTo, false, time.Now())

	if newlyAdded {
		for _, p := range relayTo {
			s.deps.Broadcaster.ScheduleNewPeerFanout(r.Context(), msg, p)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "synced"})
}

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"known":   s.deps.Peers.All(),
		"healthy": s.deps.Peers.Healthy(),
		"total":   len(s.deps.Peers.All()),
	})
}

func (s *Server) nodeStatus(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	for _, st := range s.deps.Peers.Snapshot() {
		if st.URL == addr {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}
	writeError(w, errs.New(errs.UnknownBlockIndex, "peer %s not known", addr))
}

func (s *Server) checkNode(w http.ResponseWriter, r *http.Request) {
	addr := mux.Vars(r)["addr"]
	ctx, cancel := context.WithTimeout(r.Context(), peer.HealthCheckTimeout)
	defer cancel()
	ok := s.deps.Client.ProbeHealth(ctx, addr)
	now := time.Now()
	if ok {
		s.deps.Peers.RecordSuccess(addr, now)
	} else {
		s.deps.Peers.RecordFailure(addr, now)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"address": addr, "healthy": ok})
}

func (s *Server) resolveNodes(w http.ResponseWriter, r *http.Request) {
	replaced, err := s.deps.Resolver.Resolve(r.Context(), s.deps.Chain, s.deps.Peers.Healthy())
	if err != nil {
		writeError(w, err)
		return
	}
	if replaced {
		s.persistChain()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"replaced": replaced, "length": s.deps.Chain.Len()})
}

func (s *Server) getMempool(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":         s.deps.Pool.Size(),
		"transactions": s.deps.Pool.All(),
	})
}

func (s *Server) newTransaction(w http.ResponseWriter, r *http.Request) {
	var tx txn.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, errs.Wrap(errs.Malformed, err, "decode transaction"))
		return
	}
	if err := s.deps.Pool.Add(&tx); err != nil {
		writeError(w, err)
		return
	}
	s.gossipTransaction(r.Context(), &tx, s.deps.Self)
	writeJSON(w, http.StatusOK, map[string]string{"message": "transaction added to mempool and broadcast"})
}

func (s *Server) broadcastTransaction(w http.ResponseWriter, r *http.Request) {
	var tx txn.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, errs.Wrap(errs.Malformed, err, "decode transaction"))
		return
	}
	if err := s.deps.Pool.Add(&tx); err != nil {
		if errs.KindOf(err) == errs.DuplicateTx {
			writeJSON(w, http.StatusOK, map[string]string{"message": "transaction already known"})
			return
		}
		writeError(w, err)
		return
	}
	s.gossipTransaction(r.Context(), &tx, r.RemoteAddr)
	writeJSON(w, http.StatusOK, map[string]string{"message": "transaction accepted"})
}

func (s *Server) receiveBlock(w http.ResponseWriter, r *http.Request) {
	var blk block.Block
	if err := json.NewDecoder(r.Body).Decode(&blk); err != nil {
		writeError(w, errs.Wrap(errs.Malformed, err, "decode block"))
		return
	}

	localIndex := s.deps.Chain.Tip().Index
	switch {
	case blk.Index == localIndex+1:
		if err := s.deps.Chain.Append(&blk); err != nil {
			writeError(w, err)
			return
		}
		for _, tx := range blk.Transactions {
			s.deps.Pool.Remove(tx.TxID)
		}
		s.persistChain()
		s.gossipBlock(r.Context(), &blk, r.RemoteAddr)
		writeJSON(w, http.StatusOK, map[string]string{"message": "block appended"})
	case blk.Index > localIndex+1:
		go func() {
			if replaced, _ := s.deps.Resolver.Resolve(r.Context(), s.deps.Chain, s.deps.Peers.Healthy()); replaced {
				s.persistChain()
			}
		}()
		writeJSON(w, http.StatusOK, map[string]string{"message": "triggered chain resolution"})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "block already processed"})
	}
}

func (s *Server) mine(w http.ResponseWriter, r *http.Request) {
	minerAddress := r.URL.Query().Get("miner_address")
	if minerAddress == "" {
		minerAddress = s.deps.DefaultMinerAddress
	}
	if minerAddress == "" {
		writeError(w, errs.New(errs.Malformed, "miner_address is required"))
		return
	}
	txs := s.deps.Pool.Take(miner.SelectionLimit)
	candidate, err := s.deps.Chain.Mine(r.Context(), minerAddress, txs, time.Now().Unix(), minerAddress+"_"+time.Now().Format(time.RFC3339Nano))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Chain.Append(candidate); err != nil {
		for _, tx := range txs {
			_ = s.deps.Pool.Add(tx)
		}
		writeError(w, err)
		return
	}
	s.persistChain()
	s.gossipBlock(r.Context(), candidate, s.deps.Self)
	writeJSON(w, http.StatusOK, map[string]interface{}{"message": "mined a new block", "block": candidate})
}

func (s *Server) toggleAutoMining(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enable *bool `json:"enable"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.Enable != nil {
		if *body.Enable {
			s.deps.Miner.SetMode(miner.ModeTransactionDriven)
		} else {
			s.deps.Miner.SetMode(miner.ModeDisabled)
		}
	} else if s.deps.Miner.Mode() == miner.ModeDisabled {
		s.deps.Miner.SetMode(miner.ModeTransactionDriven)
	} else {
		s.deps.Miner.SetMode(miner.ModeDisabled)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"auto_mining_enabled": s.deps.Miner.Mode() != miner.ModeDisabled})
}

func (s *Server) setMiningMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errs.Wrap(errs.Malformed, err, "decode request"))
		return
	}
	switch body.Mode {
	case "continuous":
		s.deps.Miner.SetMode(miner.ModeContinuous)
	case "transaction_driven":
		s.deps.Miner.SetMode(miner.ModeTransactionDriven)
	case "disabled":
		s.deps.Miner.SetMode(miner.ModeDisabled)
	default:
		writeError(w, errs.New(errs.Malformed, "invalid mode %q", body.Mode))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"mode": body.Mode, "auto_mining_enabled": s.deps.Miner.Mode() != miner.ModeDisabled})
}

func (s *Server) miningStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":              modeName(s.deps.Miner.Mode()),
		"state":             s.deps.Miner.State(),
		"mempool_size":      s.deps.Pool.Size(),
		"blockchain_height": s.deps.Chain.Len(),
	})
}

func modeName(m miner.Mode) string {
	switch m {
	case miner.ModeContinuous:
		return "continuous"
	case miner.ModeTransactionDriven:
		return "transaction_driven"
	default:
		return "disabled"
	}
}

func (s *Server) gossipTransaction(ctx context.Context, tx *txn.Transaction, source string) {
	raw, _ := json.Marshal(tx)
	msg := gossip.Message{ID: tx.TxID, Kind: gossip.KindTx, Origin: source, Payload: raw}
	s.deps.Broadcaster.Broadcast(ctx, msg, s.deps.Peers.HealthyExcluding(hostOf(source)), source == s.deps.Self, time.Now())
}

func (s *Server) gossipBlock(ctx context.Context, b *block.Block, source string) {
	raw, _ := json.Marshal(b)
	msg := gossip.Message{ID: b.Hash, Kind: gossip.KindBlock, Origin: source, Payload: raw}
	s.deps.Broadcaster.Broadcast(ctx, msg, s.deps.Peers.HealthyExcluding(hostOf(source)), source == s.deps.Self, time.Now())
}

func (s *Server) gossipPeerList(ctx context.Context, originate bool) {
	raw, _ := json.Marshal(s.deps.Peers.All())
	msg := gossip.Message{ID: uuid.NewString(), Kind: gossip.KindPeerList, Origin: s.deps.Self, Payload: raw}
	s.deps.Broadcaster.Broadcast(ctx, msg, s.deps.Peers.Healthy(), originate, time.Now())
}

func (s *Server) persistChain() {
	snap := storage.ChainSnapshot{
		Chain:     s.deps.Chain.Blocks(),
		UTXOSet:   s.deps.Chain.UTXOs().Snapshot(),
		Timestamp: time.Now().Unix(),
	}
	if err := s.deps.Store.SaveChain(snap); err != nil && s.deps.Log != nil {
		s.deps.Log.Error("persist chain: %v", err)
	}
}

func (s *Server) persistPeers() {
	if err := s.deps.Store.SavePeers(storage.PeerList{Nodes: s.deps.Peers.All()}); err != nil && s.deps.Log != nil {
		s.deps.Log.Error("persist peers: %v", err)
	}
}
