package bundle

// SignatureSpec gives the fixed signature/public-key lengths for one ANS-104
// signature type.
type SignatureSpec struct {
	Name   string
	SigLen int
	PubLen int
}

// signatureSpecs is the closed table of recognized signature types, keyed by
// the little-endian uint16 signatureType field in a data item's envelope.
var signatureSpecs = map[uint16]SignatureSpec{
	1: {Name: "Arweave", SigLen: 512, PubLen: 512},
	2: {Name: "Ed25519", SigLen: 64, PubLen: 32},
	3: {Name: "Ethereum", SigLen: 65, PubLen: 65},
	4: {Name: "Solana", SigLen: 64, PubLen: 32},
	5: {Name: "InjectedAptos", SigLen: 64, PubLen: 32},
	6: {Name: "MultiAptos", SigLen: 2052, PubLen: 1025},
	7: {Name: "TypedEthereum", SigLen: 65, PubLen: 42},
}

// lookupSignatureSpec returns the spec for a signatureType, or false if it is
// not one of the recognized types.
func lookupSignatureSpec(signatureType uint16) (SignatureSpec, bool) {
	s, ok := signatureSpecs[signatureType]
	return s, ok
}
