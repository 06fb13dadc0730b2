package siblingpath

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"

	"github.com/nightfall-rollup/timber/config"
	"github.com/nightfall-rollup/timber/pkg/field"
)

// ProofFixture is a verified proof laid out for the Solidity verifier.
type ProofFixture struct {
	// [A.x, A.y, B.x1, B.x0, B.y1, B.y0, C.x, C.y]
	SolidityProof [8]string `json:"solidity_proof"`
	Root          string    `json:"root"`
	LeafIndex     uint64    `json:"leaf_index"`
}

// Prove proves assignment, checks the proof against vk and returns it in
// the verifier's calldata layout.
func Prove(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, vk groth16.VerifyingKey, assignment *Circuit, leafIndex uint64) (*ProofFixture, error) {
	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("create witness: %w", err)
	}
	publicWitness, err := witness.Public()
	if err != nil {
		return nil, fmt.Errorf("extract public witness: %w", err)
	}

	proof, err := groth16.Prove(ccs, pk, witness)
	if err != nil {
		return nil, fmt.Errorf("prove: %w", err)
	}
	if err := groth16.Verify(proof, vk, publicWitness); err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}

	bn254Proof, ok := proof.(*groth16bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("unexpected proof type %T", proof)
	}
	points := [8]*big.Int{
		bn254Proof.Ar.X.BigInt(new(big.Int)),
		bn254Proof.Ar.Y.BigInt(new(big.Int)),
		bn254Proof.Bs.X.A1.BigInt(new(big.Int)),
		bn254Proof.Bs.X.A0.BigInt(new(big.Int)),
		bn254Proof.Bs.Y.A1.BigInt(new(big.Int)),
		bn254Proof.Bs.Y.A0.BigInt(new(big.Int)),
		bn254Proof.Krs.X.BigInt(new(big.Int)),
		bn254Proof.Krs.Y.BigInt(new(big.Int)),
	}

	root, err := field.Field2Digest(assignment.Root, config.DigestSize)
	if err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	fixture := &ProofFixture{
		Root:      fmt.Sprintf("0x%x", root),
		LeafIndex: leafIndex,
	}
	for i, p := range points {
		fixture.SolidityProof[i] = fmt.Sprintf("0x%064x", p)
	}
	return fixture, nil
}
