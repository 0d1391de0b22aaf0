package merkle

import "merkleverifier/internal/domain"

type Service struct {
	Hasher domain.Hasher
}

func NewService(h domain.Hasher) *Service {
	if h == nil {
		h = SHA256()
	}
	return &Service{Hasher: h}
}

func (s *Service) HashSize() int {
	return s.Hasher.Size()
}

func (s *Service) Verify(leaf domain.Digest, proof domain.Proof, claimedRoot domain.Digest) (bool, error) {
	return Verify(s.Hasher, leaf, proof, claimedRoot)
}

func (s *Service) ComputeRoot(leaf domain.Digest, proof domain.Proof) (domain.Digest, error) {
	return ComputeRoot(s.Hasher, leaf, proof)
}
