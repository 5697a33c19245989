package helper

import (
	"github.com/nimbuschain/nimbus-go/consensus/bft/model"
	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

func MakeTC(options ...func(*nimbus.TimeoutCertificate)) *nimbus.TimeoutCertificate {
	qc := MakeQC()
	tc := nimbus.TimeoutCertificate{
		Epoch:          1,
		Round:          qc.Round + 1,
		NewestQC:       qc,
		NewestQCRounds: []uint64{qc.Round, qc.Round, qc.Round},
		SignerIDs:      nimbus.IdentifierList{MakeIdentifier(), MakeIdentifier(), MakeIdentifier()},
		SigData:        MakeSigData(),
	}
	for _, option := range options {
		option(&tc)
	}
	return &tc
}

func WithTCRound(round uint64) func(*nimbus.TimeoutCertificate) {
	return func(tc *nimbus.TimeoutCertificate) {
		tc.Round = round
	}
}

func WithTCNewestQC(qc *nimbus.QuorumCertificate) func(*nimbus.TimeoutCertificate) {
	return func(tc *nimbus.TimeoutCertificate) {
		tc.NewestQC = qc
		tc.NewestQCRounds = []uint64{qc.Round, qc.Round, qc.Round}
	}
}

func WithTCSigners(signerIDs nimbus.IdentifierList) func(*nimbus.TimeoutCertificate) {
	return func(tc *nimbus.TimeoutCertificate) {
		tc.SignerIDs = signerIDs
	}
}

func MakeTimeoutObject(options ...func(*model.TimeoutObject)) *model.TimeoutObject {
	qc := MakeQC()
	timeout := model.TimeoutObject{
		Round:    qc.Round + 1,
		Epoch:    qc.Epoch,
		NewestQC: qc,
		SignerID: MakeIdentifier(),
		SigData:  MakeSigData(),
	}
	for _, option := range options {
		option(&timeout)
	}
	return &timeout
}

func WithTimeoutRound(round uint64) func(*model.TimeoutObject) {
	return func(timeout *model.TimeoutObject) {
		timeout.Round = round
	}
}

func WithTimeoutNewestQC(qc *nimbus.QuorumCertificate) func(*model.TimeoutObject) {
	return func(timeout *model.TimeoutObject) {
		timeout.NewestQC = qc
	}
}

func WithTimeoutLastRoundTC(tc *nimbus.TimeoutCertificate) func(*model.TimeoutObject) {
	return func(timeout *model.TimeoutObject) {
		timeout.LastRoundTC = tc
	}
}

func WithTimeoutSigner(signerID nimbus.Identifier) func(*model.TimeoutObject) {
	return func(timeout *model.TimeoutObject) {
		timeout.SignerID = signerID
	}
}
