package config

const (
	TreeHeight = 32 // height of the commitment tree, capacity 2^32 leaves
	DigestSize = 32 // bytes, native width of every supported hash

	// Node widths observed in deployed verifier contracts. MiMC digests are
	// already field elements and are stored whole; sha256 digests are cut
	// to 216 bits so two of them pack into one hashing round on-chain.
	MimcNodeWidth     = 32
	PoseidonNodeWidth = 32
	Sha256NodeWidth   = 27
	KeccakNodeWidth   = 32

	DefaultHashType = "mimc"

	// TxHashTreeHeight is the height of the per-block transaction hash tree,
	// which uses keccak256.
	TxHashTreeHeight = 5
)
