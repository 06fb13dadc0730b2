// Package setup compiles circuits and manages their Groth16 keys.
package setup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/rs/zerolog"
)

// CompileCircuit compiles a gnark circuit into an R1CS over BN254.
func CompileCircuit(circuit frontend.Circuit) (constraint.ConstraintSystem, error) {
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, circuit)
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	return ccs, nil
}

// DevSetup performs a single-party trusted setup and writes the keys and
// the Solidity verifier to outputDir. The keys are NOT fit for production.
func DevSetup(circuit frontend.Circuit, outputDir, circuitName string, log zerolog.Logger) error {
	log.Warn().Str("circuit", circuitName).Msg("single-party setup (1-of-1 trust), do not use these keys in production")

	ccs, err := CompileCircuit(circuit)
	if err != nil {
		return err
	}
	log.Info().Int("constraints", ccs.GetNbConstraints()).Msg("circuit compiled")

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}

	return ExportKeys(pk, vk, outputDir, circuitName, log)
}

// ExportKeys writes <circuitName>_prover.key, <circuitName>_verifier.key and
// <circuitName>_verifier.sol to outputDir.
func ExportKeys(pk groth16.ProvingKey, vk groth16.VerifyingKey, outputDir, circuitName string, log zerolog.Logger) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	solPath := filepath.Join(outputDir, circuitName+"_verifier.sol")
	f, err := os.Create(solPath)
	if err != nil {
		return fmt.Errorf("create solidity verifier: %w", err)
	}
	if err := vk.ExportSolidity(f); err != nil {
		f.Close()
		return fmt.Errorf("export solidity verifier: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close solidity verifier: %w", err)
	}

	vkPath := filepath.Join(outputDir, circuitName+"_verifier.key")
	if err := saveObject(vkPath, vk); err != nil {
		return fmt.Errorf("write verifying key: %w", err)
	}
	pkPath := filepath.Join(outputDir, circuitName+"_prover.key")
	if err := saveObject(pkPath, pk); err != nil {
		return fmt.Errorf("write proving key: %w", err)
	}

	log.Info().Str("prover", pkPath).Str("verifier", vkPath).Str("solidity", solPath).Msg("keys exported")
	return nil
}

// LoadKeys reads the keys ExportKeys wrote to dir.
func LoadKeys(dir, circuitName string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk := groth16.NewProvingKey(ecc.BN254)
	if err := loadObject(filepath.Join(dir, circuitName+"_prover.key"), pk); err != nil {
		return nil, nil, fmt.Errorf("read proving key: %w", err)
	}
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if err := loadObject(filepath.Join(dir, circuitName+"_verifier.key"), vk); err != nil {
		return nil, nil, fmt.Errorf("read verifying key: %w", err)
	}
	return pk, vk, nil
}

func saveObject(path string, obj io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := obj.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func loadObject(path string, obj io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = obj.ReadFrom(f)
	return err
}
