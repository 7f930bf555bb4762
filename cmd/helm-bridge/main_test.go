package main

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkvaa "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/Mindburn-Labs/helm-bridge/pkg/auth"
	"github.com/Mindburn-Labs/helm-bridge/pkg/config"
	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/governance"
	"github.com/Mindburn-Labs/helm-bridge/pkg/loader"
	"github.com/Mindburn-Labs/helm-bridge/pkg/receipts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/vaa"
)

const (
	programHex = "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b"
	coreHex    = "0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e0e"
	payerHex   = "0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c0c"
	bufferHex  = "1111111111111111111111111111111111111111111111111111111111111111"
	spillHex   = "5555555555555555555555555555555555555555555555555555555555555555"
)

var (
	imageV1 = []byte("\x00asm\x01\x00\x00\x00")
	imageV2 = []byte("\x00asm\x01\x00\x00\x00\x00\x03\x02v2")
)

type env struct {
	dir      string
	guardian *ecdsa.PrivateKey
}

func setupEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	guardian, err := crypto.GenerateKey()
	require.NoError(t, err)

	profile := fmt.Sprintf(`schema_version: "1.0.0"
chain: 1
program_id: %q
core_bridge_program: %q
guardian_sets:
  - index: 0
    keys: [%q]
`, programHex, coreHex, crypto.PubkeyToAddress(guardian.PublicKey).Hex())
	profilePath := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profilePath, []byte(profile), 0o600))

	t.Setenv("PROFILE_PATH", profilePath)
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CLAIM_BACKEND", "sql")
	t.Setenv("IMAGE_STORAGE_TYPE", "")
	t.Setenv("LOG_LEVEL", "ERROR")
	t.Setenv("HELM_PRODUCTION", "")
	t.Setenv("JWT_ISSUER", "")

	return &env{dir: dir, guardian: guardian}
}

func (e *env) file(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func (e *env) upgradeVAA(t *testing.T, seq contracts.Sequence, impl string) string {
	t.Helper()
	msg := &vaa.VAA{
		Version:          vaa.SupportedVersion,
		Timestamp:        time.Unix(1_700_000_000, 0),
		Nonce:            1,
		EmitterChain:     sdkvaa.GovernanceChain,
		EmitterAddress:   sdkvaa.GovernanceEmitter,
		Sequence:         uint64(seq),
		ConsistencyLevel: 1,
		Payload: governance.ContractUpgrade{
			Chain:          contracts.ChainIDSolana,
			Implementation: contracts.MustParseAddress(impl),
		}.Encode(),
	}
	msg.AddSignature(e.guardian, 0)
	raw, err := msg.Marshal()
	require.NoError(t, err)
	return e.file(t, fmt.Sprintf("vaa-%d.b64", seq), []byte(base64.StdEncoding.EncodeToString(raw)))
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"helm-bridge"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_Help(t *testing.T) {
	code, out, _ := run("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "USAGE")
	assert.Contains(t, out, "upgrade")
}

func TestRun_UnknownCommand(t *testing.T) {
	code, _, errOut := run("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")

	code, _, _ = run()
	assert.Equal(t, 2, code)
}

func TestRun_MissingFlags(t *testing.T) {
	setupEnv(t)

	for _, args := range [][]string{
		{"init"},
		{"stage", "--image", "x"},
		{"upgrade", "--vaa", "x"},
		{"token"},
		{"init", "--payer", "not-hex"},
	} {
		code, _, _ := run(args...)
		assert.Equal(t, 2, code, strings.Join(args, " "))
	}
}

func TestRun_UpgradeLifecycle(t *testing.T) {
	e := setupEnv(t)

	code, out, errOut := run("derive")
	require.Equal(t, 0, code, errOut)
	var addrs derived
	require.NoError(t, json.Unmarshal([]byte(out), &addrs))
	assert.Equal(t, programHex, addrs.Program.String())
	assert.False(t, addrs.Authority.IsZero())

	code, _, errOut = run("init", "--payer", payerHex)
	require.Equal(t, 0, code, errOut)
	code, _, errOut = run("init", "--payer", payerHex)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already initialized")

	code, _, errOut = run("stage", "--deploy", "--image", e.file(t, "v1.wasm", imageV1))
	require.Equal(t, 0, code, errOut)
	code, _, errOut = run("stage", "--buffer", bufferHex, "--image", e.file(t, "v2.wasm", imageV2), "--lamports", "10000000")
	require.Equal(t, 0, code, errOut)

	vaaPath := e.upgradeVAA(t, 7, bufferHex)

	code, out, errOut = run("derive", "--vaa", vaaPath)
	require.Equal(t, 0, code, errOut)
	var withClaim derived
	require.NoError(t, json.Unmarshal([]byte(out), &withClaim))
	require.NotNil(t, withClaim.Claim)

	code, out, errOut = run("upgrade", "--vaa", vaaPath, "--payer", payerHex, "--buffer", bufferHex,
		"--spill", spillHex, "--claim", withClaim.Claim.String())
	require.Equal(t, 0, code, errOut)
	var rcpt receipts.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &rcpt))
	assert.Equal(t, receipts.StatusUpgraded, rcpt.Status)
	assert.Equal(t, *withClaim.Claim, rcpt.ClaimAddress)

	code, _, errOut = run("upgrade", "--vaa", vaaPath, "--payer", payerHex, "--buffer", bufferHex, "--spill", spillHex)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "AlreadyExecuted")

	code, out, errOut = run("claim", "--sequence", "7")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, payerHex)

	code, out, _ = run("claim", "--sequence", "8")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "unclaimed: ")

	code, out, errOut = run("inspect")
	require.Equal(t, 0, code, errOut)
	var state struct {
		Config      map[string]any      `json:"config"`
		ProgramData *loader.ProgramData `json:"program_data"`
		Receipts    []receipts.Receipt  `json:"receipts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	require.NotNil(t, state.ProgramData)
	assert.Equal(t, uint64(2), state.ProgramData.Generation)
	assert.Equal(t, coreHex, state.Config["core_bridge_program"])
	require.Len(t, state.Receipts, 1)
	assert.Equal(t, rcpt.ID, state.Receipts[0].ID)
}

func TestRun_Token(t *testing.T) {
	setupEnv(t)

	code, out, errOut := run("token", "--sub", payerHex, "--ttl", "5m")
	require.Equal(t, 0, code, errOut)

	keys, err := loadKeySet(os.Getenv("DATA_DIR"))
	require.NoError(t, err)
	claims, err := auth.NewJWTValidator(keys, "helm-bridge").Validate(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, payerHex, claims.Subject)
}

func TestRun_Decree(t *testing.T) {
	code, out, _ := run("decree", "--implementation", bufferHex)
	require.Equal(t, 0, code)
	raw, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)

	want, err := sdkvaa.BodyTokenBridgeUpgradeContract{
		Module:        governance.Module,
		TargetChainID: sdkvaa.ChainIDSolana,
		NewContract:   sdkvaa.Address(contracts.MustParseAddress(bufferHex)),
	}.Serialize()
	require.NoError(t, err)
	assert.Equal(t, want, raw)

	decree, ok := governance.Parse(raw)
	require.True(t, ok)
	assert.Equal(t, governance.ContractUpgrade{Chain: contracts.ChainIDSolana, Implementation: contracts.MustParseAddress(bufferHex)}, decree)

	code, out, _ = run("decree", "--implementation", bufferHex, "--chain", "0", "--base64")
	require.Equal(t, 0, code)
	raw, err = base64.StdEncoding.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)
	decree, ok = governance.Parse(raw)
	require.True(t, ok)
	assert.Equal(t, contracts.ChainID(0), decree.TargetChain())

	code, _, _ = run("decree")
	assert.Equal(t, 2, code)
	code, _, _ = run("decree", "--implementation", bufferHex, "--chain", "70000")
	assert.Equal(t, 2, code)
}

func TestServe_HealthAndShutdown(t *testing.T) {
	setupEnv(t)
	t.Setenv("OTEL_ENABLED", "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, config.Load(), addr, io.Discard, io.Discard)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 10*time.Second, 50*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/v1/receipts")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
