// Package cli implements the node's interactive operator console
// (component A5): a blocking, numbered menu for registering peers,
// sending transactions, mining manually, and inspecting chain state,
// mirroring the original node's terminal menu.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/wahahalyy/blockchain-simulator/pkg/miner"
	"github.com/wahahalyy/blockchain-simulator/pkg/node"
	"github.com/wahahalyy/blockchain-simulator/pkg/txn"
	"github.com/wahahalyy/blockchain-simulator/pkg/wallet"
)

// Menu drives the node's interactive console over in/out.
type Menu struct {
	node    *node.Node
	in      *bufio.Scanner
	out     io.Writer
	wallets map[string]*wallet.Wallet
}

// New returns a Menu for n, reading commands from in and writing
// prompts and output to out.
func New(n *node.Node, in io.Reader, out io.Writer) *Menu {
	return &Menu{
		node:    n,
		in:      bufio.NewScanner(in),
		out:     out,
		wallets: map[string]*wallet.Wallet{n.Wallet().Address(): n.Wallet()},
	}
}

// Run prints the menu and dispatches choices until the user quits.
func (m *Menu) Run() {
	for {
		m.printMenu()
		choice := m.prompt("choose an option (1-14): ")
		switch choice {
		case "1":
			m.registerNode()
		case "2":
			m.createGenesis()
		case "3":
			m.createWallet()
		case "4":
			m.sendTransaction()
		case "5":
			m.mineBlock()
		case "6":
			m.viewChain()
		case "7":
			m.queryBalance()
		case "8":
			m.viewWallets()
		case "9":
			m.viewNetwork()
		case "10":
			m.viewMempool()
		case "11":
			m.resolveConflicts()
		case "12":
			m.toggleAutoMining()
		case "13":
			m.switchMiningMode()
		case "14":
			fmt.Fprintln(m.out, "shutting down...")
			return
		default:
			fmt.Fprintln(m.out, "invalid option, try again")
		}
	}
}

func (m *Menu) printMenu() {
	fmt.Fprint(m.out, `
--- blockchain node ---
1.  register a peer node
2.  show genesis block
3.  create a wallet
4.  send a transaction
5.  mine a block manually
6.  view the chain (last 10 blocks)
7.  query a wallet balance
8.  list known wallets
9.  view network peers
10. view mempool
11. resolve chain conflicts
12. toggle auto-mining
13. switch mining mode
14. quit
`)
}

func (m *Menu) prompt(label string) string {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		return "14"
	}
	return strings.TrimSpace(m.in.Text())
}

func (m *Menu) registerNode() {
	addr := m.prompt("peer address (host:port): ")
	if addr == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.node.Client().RegisterWith(ctx, addr, m.node.Self()); err != nil {
		fmt.Fprintf(m.out, "failed to register with %s: %v\n", addr, err)
		return
	}
	m.node.Peers().Add(addr)
	fmt.Fprintf(m.out, "registered with %s\n", addr)
}

func (m *Menu) createGenesis() {
	genesis, err := m.node.Chain().BlockAt(0)
	if err != nil {
		fmt.Fprintf(m.out, "no genesis block: %v\n", err)
		return
	}
	fmt.Fprintf(m.out, "genesis hash=%s miner credited in block 0\n", genesis.Hash)
}

func (m *Menu) createWallet() {
	w, err := wallet.New()
	if err != nil {
		fmt.Fprintf(m.out, "failed to create wallet: %v\n", err)
		return
	}
	m.wallets[w.Address()] = w
	fmt.Fprintf(m.out, "created wallet %s\n", w.Address())
}

func (m *Menu) sendTransaction() {
	senders := m.walletAddresses()
	for i, addr := range senders {
		fmt.Fprintf(m.out, "%d. %s\n", i+1, addr)
	}
	idxStr := m.prompt("sender wallet number: ")
	idx, err := strconv.Atoi(idxStr)
	if err != nil || idx < 1 || idx > len(senders) {
		fmt.Fprintln(m.out, "invalid selection")
		return
	}
	sender := m.wallets[senders[idx-1]]

	recipient := m.prompt("recipient address: ")
	amountStr := m.prompt("amount: ")
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		fmt.Fprintln(m.out, "invalid amount")
		return
	}

	tx := txn.New(sender.Address(), recipient, amount, 0, time.Now().Unix())
	if err := tx.Sign(sender); err != nil {
		fmt.Fprintf(m.out, "failed to sign transaction: %v\n", err)
		return
	}
	if err := m.node.Pool().Add(tx); err != nil {
		fmt.Fprintf(m.out, "rejected: %v\n", err)
		return
	}
	fmt.Fprintf(m.out, "transaction %s added to mempool\n", tx.TxID)
}

func (m *Menu) mineBlock() {
	minerAddr := m.prompt(fmt.Sprintf("miner address (blank for %s): ", m.node.Wallet().Address()))
	if minerAddr == "" {
		minerAddr = m.node.Wallet().Address()
	}
	txs := m.node.Pool().Take(miner.SelectionLimit)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	candidate, err := m.node.Chain().Mine(ctx, minerAddr, txs, time.Now().Unix(), minerAddr+"_"+time.Now().Format(time.RFC3339Nano))
	if err != nil {
		fmt.Fprintf(m.out, "mining failed: %v\n", err)
		return
	}
	if err := m.node.Chain().Append(candidate); err != nil {
		for _, tx := range txs {
			_ = m.node.Pool().Add(tx)
		}
		fmt.Fprintf(m.out, "append failed: %v\n", err)
		return
	}
	m.node.PersistChain()
	m.node.GossipBlock(ctx, candidate)
	fmt.Fprintf(m.out, "mined block %d, hash=%s\n", candidate.Index, candidate.Hash)
}

func (m *Menu) viewChain() {
	blocks := m.node.Chain().Blocks()
	start := 0
	if len(blocks) > 10 {
		start = len(blocks) - 10
	}
	for _, b := range blocks[start:] {
		fmt.Fprintf(m.out, "block %d hash=%s txs=%d\n", b.Index, b.Hash, len(b.Transactions))
	}
}

func (m *Menu) queryBalance() {
	addr := m.prompt("wallet address: ")
	balance := m.node.Chain().UTXOs().Balance(addr)
	fmt.Fprintf(m.out, "balance: %d\n", balance)
}

func (m *Menu) viewWallets() {
	for _, addr := range m.walletAddresses() {
		fmt.Fprintf(m.out, "%s (nonce %d)\n", addr, m.wallets[addr].CurrentNonce())
	}
}

func (m *Menu) walletAddresses() []string {
	addrs := make([]string, 0, len(m.wallets))
	for addr := range m.wallets {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (m *Menu) viewNetwork() {
	fmt.Fprintf(m.out, "known: %v\n", m.node.Peers().All())
	fmt.Fprintf(m.out, "healthy: %v\n", m.node.Peers().Healthy())
}

func (m *Menu) viewMempool() {
	txs := m.node.Pool().All()
	fmt.Fprintf(m.out, "%d pending transaction(s)\n", len(txs))
	for _, tx := range txs {
		fmt.Fprintf(m.out, "%s: %s -> %s (%d)\n", tx.TxID, tx.Sender, tx.Recipient, tx.Amount)
	}
}

func (m *Menu) resolveConflicts() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	replaced, err := m.node.Resolver().Resolve(ctx, m.node.Chain(), m.node.Peers().Healthy())
	if err != nil {
		fmt.Fprintf(m.out, "resolve failed: %v\n", err)
		return
	}
	if replaced {
		m.node.PersistChain()
		fmt.Fprintln(m.out, "adopted a longer chain from a peer")
	} else {
		fmt.Fprintln(m.out, "this chain is already the longest known")
	}
}

func (m *Menu) toggleAutoMining() {
	if m.node.Miner().Mode() == miner.ModeDisabled {
		m.node.Miner().SetMode(miner.ModeTransactionDriven)
		fmt.Fprintln(m.out, "auto-mining enabled (transaction driven)")
	} else {
		m.node.Miner().SetMode(miner.ModeDisabled)
		fmt.Fprintln(m.out, "auto-mining disabled")
	}
}

func (m *Menu) switchMiningMode() {
	fmt.Fprintln(m.out, "1. transaction driven\n2. continuous\n3. disabled")
	choice := m.prompt("choose mode (1-3): ")
	switch choice {
	case "1":
		m.node.Miner().SetMode(miner.ModeTransactionDriven)
	case "2":
		m.node.Miner().SetMode(miner.ModeContinuous)
	case "3":
		m.node.Miner().SetMode(miner.ModeDisabled)
	default:
		fmt.Fprintln(m.out, "invalid choice")
	}
}
