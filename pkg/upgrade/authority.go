// Package upgrade invokes the program loader to replace this program's
// executable, signing as the program-derived upgrade authority.
package upgrade

import (
	"fmt"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
	"github.com/Mindburn-Labs/helm-bridge/pkg/pda"
)

// UpgradeSeedPrefix is the fixed seed of the upgrade authority.
const UpgradeSeedPrefix = "upgrade"

// Authority is the derived signer allowed to upgrade the program. It holds no
// key material; the seeds and bump are its proof.
type Authority struct {
	Address contracts.Address `json:"address"`
	Bump    uint8             `json:"bump"`
}

// DeriveAuthority computes the upgrade authority of programID.
func DeriveAuthority(programID contracts.Address) (Authority, error) {
	addr, bump, err := pda.FindProgramAddress([][]byte{[]byte(UpgradeSeedPrefix)}, programID)
	if err != nil {
		return Authority{}, fmt.Errorf("derive upgrade authority: %w", err)
	}
	return Authority{Address: addr, Bump: bump}, nil
}

// SignerSeeds returns the seeds, bump included, that prove the authority.
func (a Authority) SignerSeeds() [][]byte {
	return [][]byte{[]byte(UpgradeSeedPrefix), {a.Bump}}
}

// ProgramDataAddress is where the loader keeps the metadata record of programID.
func ProgramDataAddress(programID contracts.Address) (contracts.Address, error) {
	addr, _, err := pda.FindProgramAddress([][]byte{programID[:]}, contracts.UpgradeableLoader)
	if err != nil {
		return contracts.Address{}, fmt.Errorf("derive program data address: %w", err)
	}
	return addr, nil
}
