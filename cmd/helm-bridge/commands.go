package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
	"github.com/Mindburn-Labs/helm-bridge/pkg/bootstrap"
	"github.com/Mindburn-Labs/helm-bridge/pkg/claim"
	"github.com/Mindburn-Labs/helm-bridge/pkg/config"
	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/governance"
	"github.com/Mindburn-Labs/helm-bridge/pkg/loader"
	"github.com/Mindburn-Labs/helm-bridge/pkg/processor"
	"github.com/Mindburn-Labs/helm-bridge/pkg/receipts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/upgrade"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

// addressFlag parses a hex account address.
type addressFlag struct {
	addr contracts.Address
	set  bool
}

func (f *addressFlag) String() string {
	if !f.set {
		return ""
	}
	return f.addr.String()
}

func (f *addressFlag) Set(s string) error {
	a, err := contracts.ParseAddress(s)
	if err != nil {
		return err
	}
	f.addr, f.set = a, true
	return nil
}

// withNode opens the node described by the environment, runs fn and closes it.
func withNode(stderr io.Writer, fn func(ctx context.Context, n *node) int) int {
	cfg := config.Load()
	setupLogging(stderr, cfg.LogLevel)

	ctx := context.Background()
	n, err := openNode(ctx, cfg, nil)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = n.Close() }()
	return fn(ctx, n)
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(data))
}

func fail(stderr io.Writer, err error) int {
	_, _ = fmt.Fprintf(stderr, "%sError:%s %v\n", ColorRed, ColorReset, err)
	return 1
}

func runInitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("init", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var payer addressFlag
	cmd.Var(&payer, "payer", "Account funding the config record (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if !payer.set {
		_, _ = fmt.Fprintln(stderr, "Error: --payer is required")
		cmd.Usage()
		return 2
	}

	return withNode(stderr, func(ctx context.Context, n *node) int {
		rec, err := n.bootstrap.Initialize(ctx, payer.addr, n.deployment.CoreBridgeProgram)
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, rec)
		return 0
	})
}

type derived struct {
	Program       contracts.Address  `json:"program"`
	Authority     contracts.Address  `json:"upgrade_authority"`
	AuthorityBump uint8              `json:"upgrade_authority_bump"`
	ProgramData   contracts.Address  `json:"program_data"`
	Config        contracts.Address  `json:"config"`
	Claim         *contracts.Address `json:"claim,omitempty"`
	ClaimKey      *claim.Key         `json:"claim_key,omitempty"`
}

func runDeriveCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("derive", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var vaaPath string
	cmd.StringVar(&vaaPath, "vaa", "", "Signed message (binary or base64) whose claim address to derive")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	profile, err := config.LoadProfile(config.Load().ProfilePath)
	if err != nil {
		return fail(stderr, err)
	}
	d, err := profile.Resolve()
	if err != nil {
		return fail(stderr, err)
	}

	out, err := deriveAll(d.ProgramID)
	if err != nil {
		return fail(stderr, err)
	}
	if vaaPath != "" {
		raw, err := readVAA(vaaPath)
		if err != nil {
			return fail(stderr, err)
		}
		msg, err := vaa.Unmarshal(raw)
		if err != nil {
			return fail(stderr, err)
		}
		key := claim.KeyFor(msg)
		addr, err := key.Address(d.ProgramID)
		if err != nil {
			return fail(stderr, err)
		}
		out.Claim, out.ClaimKey = &addr, &key
	}
	printJSON(stdout, out)
	return 0
}

func deriveAll(programID contracts.Address) (*derived, error) {
	authority, err := upgrade.DeriveAuthority(programID)
	if err != nil {
		return nil, err
	}
	pd, err := upgrade.ProgramDataAddress(programID)
	if err != nil {
		return nil, err
	}
	cfgAddr, err := bootstrap.ConfigAddress(programID)
	if err != nil {
		return nil, err
	}
	return &derived{
		Program:       programID,
		Authority:     authority.Address,
		AuthorityBump: authority.Bump,
		ProgramData:   pd,
		Config:        cfgAddr,
	}, nil
}

func runStageCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("stage", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		imagePath string
		buffer    addressFlag
		lamports  uint64
		deploy    bool
	)
	cmd.StringVar(&imagePath, "image", "", "Executable image file (REQUIRED)")
	cmd.Var(&buffer, "buffer", "Buffer address to stage into")
	cmd.Uint64Var(&lamports, "lamports", 0, "Buffer funding (default: rent-exempt minimum of the image)")
	cmd.BoolVar(&deploy, "deploy", false, "Deploy the image as the program instead of staging a buffer")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if imagePath == "" || (!deploy && !buffer.set) {
		_, _ = fmt.Fprintln(stderr, "Error: --image and one of --buffer or --deploy are required")
		cmd.Usage()
		return 2
	}
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fail(stderr, err)
	}

	return withNode(stderr, func(ctx context.Context, n *node) int {
		authority, err := upgrade.DeriveAuthority(n.deployment.ProgramID)
		if err != nil {
			return fail(stderr, err)
		}

		if deploy {
			pd, err := n.loader.Deploy(ctx, n.deployment.ProgramID, authority.Address, image)
			if err != nil {
				return fail(stderr, err)
			}
			printJSON(stdout, pd)
			return 0
		}

		if lamports == 0 {
			lamports = loader.RentExemptMinimum(loader.ProgramDataHeader + len(image))
		}
		b, err := n.loader.WriteBuffer(ctx, buffer.addr, authority.Address, image, lamports)
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, b)
		return 0
	})
}

func runUpgradeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("upgrade", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		vaaPath              string
		payer, buffer, spill addressFlag
		claimAddr            addressFlag
	)
	cmd.StringVar(&vaaPath, "vaa", "", "Signed governance message, binary or base64 (REQUIRED)")
	cmd.Var(&payer, "payer", "Account funding the claim record (REQUIRED)")
	cmd.Var(&buffer, "buffer", "Staged candidate implementation (REQUIRED)")
	cmd.Var(&spill, "spill", "Account receiving released lamports (REQUIRED)")
	cmd.Var(&claimAddr, "claim", "Expected claim address")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if vaaPath == "" || !payer.set || !buffer.set || !spill.set {
		_, _ = fmt.Fprintln(stderr, "Error: --vaa, --payer, --buffer and --spill are required")
		cmd.Usage()
		return 2
	}
	raw, err := readVAA(vaaPath)
	if err != nil {
		return fail(stderr, err)
	}

	return withNode(stderr, func(ctx context.Context, n *node) int {
		req := processor.Request{VAA: raw, Payer: payer.addr, Buffer: buffer.addr, Spill: spill.addr}
		if claimAddr.set {
			req.Claim = &claimAddr.addr
		}

		rcpt, err := n.proc.UpgradeContract(ctx, req)
		if rcpt != nil {
			printJSON(stdout, rcpt)
		}
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "%s%s:%s %v\n", ColorRed, processor.Kind(err), ColorReset, err)
			return 1
		}
		return 0
	})
}

func runClaimCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("claim", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		chain    uint
		emitter  addressFlag
		sequence uint64
	)
	cmd.UintVar(&chain, "chain", uint(contracts.GovernanceChain), "Emitter chain")
	cmd.Var(&emitter, "emitter", "Emitter address (default: governance emitter)")
	cmd.Uint64Var(&sequence, "sequence", 0, "Message sequence")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if chain > 0xFFFF {
		_, _ = fmt.Fprintln(stderr, "Error: --chain must fit in 16 bits")
		return 2
	}
	if !emitter.set {
		emitter.addr = contracts.GovernanceEmitter
	}

	return withNode(stderr, func(ctx context.Context, n *node) int {
		key := claim.Key{Chain: contracts.ChainID(chain), Emitter: emitter.addr, Sequence: contracts.Sequence(sequence)}
		rec, err := n.proc.Claim(ctx, key)
		if errors.Is(err, claim.ErrNotFound) {
			addr, aerr := n.proc.ClaimAddress(key)
			if aerr != nil {
				return fail(stderr, aerr)
			}
			_, _ = fmt.Fprintf(stdout, "unclaimed: %s\n", addr)
			return 1
		}
		if err != nil {
			return fail(stderr, err)
		}
		printJSON(stdout, rec)
		return 0
	})
}

type inspection struct {
	Addresses   *derived            `json:"addresses"`
	Config      *bootstrap.Config   `json:"config,omitempty"`
	ProgramData *loader.ProgramData `json:"program_data,omitempty"`
	Receipts    []*receipts.Receipt `json:"receipts"`
}

func runInspectCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("inspect", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var limit int
	cmd.IntVar(&limit, "receipts", 5, "Number of recent receipts to show")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	return withNode(stderr, func(ctx context.Context, n *node) int {
		addrs, err := deriveAll(n.deployment.ProgramID)
		if err != nil {
			return fail(stderr, err)
		}
		out := inspection{Addresses: addrs}

		if rec, err := n.bootstrap.Load(ctx); err == nil {
			out.Config = rec
		} else if !errors.Is(err, bootstrap.ErrNotInitialized) {
			return fail(stderr, err)
		}

		if pd, err := n.loader.State().ProgramData(ctx, addrs.ProgramData); err == nil {
			out.ProgramData = pd
		} else if !errors.Is(err, loader.ErrAccountNotFound) {
			return fail(stderr, err)
		}

		list, err := n.proc.Receipts(ctx, limit)
		if err != nil {
			return fail(stderr, err)
		}
		out.Receipts = list
		printJSON(stdout, out)
		return 0
	})
}

func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("token", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		sub addressFlag
		ttl time.Duration
	)
	cmd.Var(&sub, "sub", "Payer address the token authenticates (REQUIRED)")
	cmd.DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if !sub.set {
		_, _ = fmt.Fprintln(stderr, "Error: --sub is required")
		cmd.Usage()
		return 2
	}

	cfg := config.Load()
	keys, err := loadKeySet(cfg.DataDir)
	if err != nil {
		return fail(stderr, err)
	}
	token, err := auth.IssueToken(context.Background(), keys, cfg.JWTIssuer, sub.addr.String(), ttl)
	if err != nil {
		return fail(stderr, err)
	}
	_, _ = fmt.Fprintln(stdout, token)
	return 0
}

// runDecreeCmd prints the governance payload a guardian quorum must sign to
// authorize upgrading this deployment's program to --implementation.
func runDecreeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("decree", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		impl  addressFlag
		chain uint
		b64   bool
	)
	cmd.Var(&impl, "implementation", "Buffer holding the new implementation (REQUIRED)")
	cmd.UintVar(&chain, "chain", uint(contracts.ChainIDSolana), "Target chain; 0 addresses every chain")
	cmd.BoolVar(&b64, "base64", false, "Print base64 instead of hex")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if !impl.set {
		_, _ = fmt.Fprintln(stderr, "Error: --implementation is required")
		cmd.Usage()
		return 2
	}
	if chain > 0xFFFF {
		_, _ = fmt.Fprintln(stderr, "Error: --chain must fit in 16 bits")
		return 2
	}

	payload := governance.ContractUpgrade{Chain: contracts.ChainID(chain), Implementation: impl.addr}.Encode()
	if b64 {
		_, _ = fmt.Fprintln(stdout, base64.StdEncoding.EncodeToString(payload))
	} else {
		_, _ = fmt.Fprintln(stdout, hex.EncodeToString(payload))
	}
	return 0
}

// readVAA reads a message file holding either raw bytes or base64 text.
func readVAA(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data))); err == nil && len(decoded) > 0 {
		return decoded, nil
	}
	return data, nil
}
