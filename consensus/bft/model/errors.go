package model

import (
	"errors"
	"fmt"

	"github.com/nimbuschain/nimbus-go/model/nimbus"
)

var (
	// ErrStaleRound is a safety rejection: the proposal's round is not larger
	// than the highest round this validator already voted or timed out in.
	ErrStaleRound = errors.New("block round at or below highest voted round")

	// ErrStaleQC is a safety rejection: the proposal extends a QC older than
	// the highest QC this validator has locked on.
	ErrStaleQC = errors.New("block extends a QC below the highest known QC round")

	// ErrEpochMismatch is a safety rejection: the proposal is tagged with an
	// epoch other than the validator's current epoch.
	ErrEpochMismatch = errors.New("block epoch differs from current epoch")

	// ErrUnverifiableBlock means the proposal cannot be checked against the
	// block tree, because its round is above the committed round but its QC
	// references a block below the committed root.
	ErrUnverifiableBlock = errors.New("block proposal can't be verified, because its QC is below the committed round")

	// ErrInvalidSignature indicates a signature that fails cryptographic
	// verification.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrViewForUnknownEpoch indicates that a round was requested for an
	// epoch this node knows nothing about.
	ErrViewForUnknownEpoch = errors.New("round belongs to unknown epoch")
)

// NoVoteError means the safety rules decided, during normal operation, not to
// vote for the proposal. The wrapped error carries the rejection reason
// (ErrStaleRound, ErrStaleQC, ErrEpochMismatch). This is a sentinel error and
// expected during normal operation; it is logged at low severity and no vote
// is emitted.
type NoVoteError struct {
	Err error
}

func (e NoVoteError) Error() string { return fmt.Sprintf("not voting - %s", e.Err.Error()) }
func (e NoVoteError) Unwrap() error { return e.Err }

// IsNoVoteError returns whether an error is NoVoteError
func IsNoVoteError(err error) bool {
	var e NoVoteError
	return errors.As(err, &e)
}

func NewNoVoteErrorf(msg string, args ...interface{}) error {
	return NoVoteError{Err: fmt.Errorf(msg, args...)}
}

// NoTimeoutError means the safety rules decided that signing a timeout for
// the given round would violate the protocol. This is a sentinel error and
// expected during normal operation.
type NoTimeoutError struct {
	Err error
}

func (e NoTimeoutError) Error() string {
	return fmt.Sprintf("conditions not safe to generate timeout - %s", e.Err.Error())
}
func (e NoTimeoutError) Unwrap() error { return e.Err }

// IsNoTimeoutError returns whether an error is NoTimeoutError
func IsNoTimeoutError(err error) bool {
	var e NoTimeoutError
	return errors.As(err, &e)
}

func NewNoTimeoutErrorf(msg string, args ...interface{}) error {
	return NoTimeoutError{Err: fmt.Errorf(msg, args...)}
}

// ConfigurationError indicates that a constructor or component was
// initialized with invalid or inconsistent parameters.
type ConfigurationError struct {
	err error
}

func NewConfigurationErrorf(msg string, args ...interface{}) error {
	return ConfigurationError{fmt.Errorf(msg, args...)}
}

func (e ConfigurationError) Error() string { return e.err.Error() }
func (e ConfigurationError) Unwrap() error { return e.err }

// IsConfigurationError returns whether err is a ConfigurationError
func IsConfigurationError(err error) bool {
	var e ConfigurationError
	return errors.As(err, &e)
}

// MissingParentError indicates that a block cannot be inserted into the block
// tree because its parent is unknown.
type MissingParentError struct {
	Round    uint64
	BlockID  nimbus.Identifier
	ParentID nimbus.Identifier
}

func (e MissingParentError) Error() string {
	return fmt.Sprintf("missing parent %v for block %v at round %d", e.ParentID, e.BlockID, e.Round)
}

// IsMissingParentError returns whether an error is MissingParentError
func IsMissingParentError(err error) bool {
	var e MissingParentError
	return errors.As(err, &e)
}

// InvalidQCError indicates a QC that is structurally or cryptographically
// invalid, or inconsistent with the block it claims to certify.
type InvalidQCError struct {
	BlockID nimbus.Identifier
	Round   uint64
	Err     error
}

func NewInvalidQCErrorf(qc *nimbus.QuorumCertificate, msg string, args ...interface{}) error {
	return InvalidQCError{
		BlockID: qc.BlockID,
		Round:   qc.Round,
		Err:     fmt.Errorf(msg, args...),
	}
}

func (e InvalidQCError) Error() string {
	return fmt.Sprintf("invalid QC for block %v at round %d: %s", e.BlockID, e.Round, e.Err.Error())
}
func (e InvalidQCError) Unwrap() error { return e.Err }

// IsInvalidQCError returns whether an error is InvalidQCError
func IsInvalidQCError(err error) bool {
	var e InvalidQCError
	return errors.As(err, &e)
}

// InvalidTCError indicates a TC that is structurally or cryptographically
// invalid.
type InvalidTCError struct {
	Round uint64
	Err   error
}

func NewInvalidTCErrorf(tc *nimbus.TimeoutCertificate, msg string, args ...interface{}) error {
	return InvalidTCError{
		Round: tc.Round,
		Err:   fmt.Errorf(msg, args...),
	}
}

func (e InvalidTCError) Error() string {
	return fmt.Sprintf("invalid TC for round %d: %s", e.Round, e.Err.Error())
}
func (e InvalidTCError) Unwrap() error { return e.Err }

// IsInvalidTCError returns whether an error is InvalidTCError
func IsInvalidTCError(err error) bool {
	var e InvalidTCError
	return errors.As(err, &e)
}

// InvalidProposalError indicates a proposal that violates the protocol:
// malformed, wrongly signed, from an ineligible leader, or carrying invalid
// certificates. The message is dropped at the ingestion boundary; the sender
// may be penalized.
type InvalidProposalError struct {
	ProposerID nimbus.Identifier
	BlockID    nimbus.Identifier
	Round      uint64
	Err        error
}

func NewInvalidProposalErrorf(proposal *Proposal, msg string, args ...interface{}) error {
	return InvalidProposalError{
		ProposerID: proposal.Block.ProposerID,
		BlockID:    proposal.Block.BlockID,
		Round:      proposal.Block.Round,
		Err:        fmt.Errorf(msg, args...),
	}
}

func (e InvalidProposalError) Error() string {
	return fmt.Sprintf("invalid proposal %v at round %d: %s", e.BlockID, e.Round, e.Err.Error())
}
func (e InvalidProposalError) Unwrap() error { return e.Err }

// IsInvalidProposalError returns whether an error is InvalidProposalError
func IsInvalidProposalError(err error) bool {
	var e InvalidProposalError
	return errors.As(err, &e)
}

// InvalidVoteError indicates a vote that violates the protocol.
type InvalidVoteError struct {
	VoteID nimbus.Identifier
	Round  uint64
	Err    error
}

func NewInvalidVoteErrorf(vote *Vote, msg string, args ...interface{}) error {
	return InvalidVoteError{
		VoteID: vote.ID(),
		Round:  vote.Round,
		Err:    fmt.Errorf(msg, args...),
	}
}

func (e InvalidVoteError) Error() string {
	return fmt.Sprintf("invalid vote %v for round %d: %s", e.VoteID, e.Round, e.Err.Error())
}
func (e InvalidVoteError) Unwrap() error { return e.Err }

// IsInvalidVoteError returns whether an error is InvalidVoteError
func IsInvalidVoteError(err error) bool {
	var e InvalidVoteError
	return errors.As(err, &e)
}

// InvalidTimeoutError indicates a timeout object that violates the protocol.
type InvalidTimeoutError struct {
	TimeoutID nimbus.Identifier
	Round     uint64
	Err       error
}

func NewInvalidTimeoutErrorf(timeout *TimeoutObject, msg string, args ...interface{}) error {
	return InvalidTimeoutError{
		TimeoutID: timeout.ID(),
		Round:     timeout.Round,
		Err:       fmt.Errorf(msg, args...),
	}
}

func (e InvalidTimeoutError) Error() string {
	return fmt.Sprintf("invalid timeout %v for round %d: %s", e.TimeoutID, e.Round, e.Err.Error())
}
func (e InvalidTimeoutError) Unwrap() error { return e.Err }

// IsInvalidTimeoutError returns whether an error is InvalidTimeoutError
func IsInvalidTimeoutError(err error) bool {
	var e InvalidTimeoutError
	return errors.As(err, &e)
}

var (
	// VoteForIncompatibleRoundError is returned when a vote is offered to a
	// collector for a different round. The vote is simply misrouted and
	// carries no evidence of misbehaviour.
	VoteForIncompatibleRoundError = errors.New("vote for incompatible round")

	// VoteForIncompatibleBlockError is returned when a vote references a
	// different block than the collector's proposal. Such votes arise
	// honestly when a Byzantine leader equivocates; the vote is dropped.
	VoteForIncompatibleBlockError = errors.New("vote for incompatible block")

	// TimeoutForIncompatibleRoundError is returned when a timeout is offered
	// to a collector for a different round.
	TimeoutForIncompatibleRoundError = errors.New("timeout for incompatible round")
)

// DoubleVoteError indicates that a validator has voted for two different
// blocks in the same round. This is equivocation evidence, reported via
// notifications; processing continues with the first-seen vote.
type DoubleVoteError struct {
	FirstVote       *Vote
	ConflictingVote *Vote
	err             error
}

func (e DoubleVoteError) Error() string { return e.err.Error() }
func (e DoubleVoteError) Unwrap() error { return e.err }

// IsDoubleVoteError returns whether an error is DoubleVoteError
func IsDoubleVoteError(err error) bool {
	var e DoubleVoteError
	return errors.As(err, &e)
}

// AsDoubleVoteError determines whether the given error is a DoubleVoteError
// (potentially wrapped). It follows the same semantics as a checked type cast.
func AsDoubleVoteError(err error) (*DoubleVoteError, bool) {
	var e DoubleVoteError
	ok := errors.As(err, &e)
	if ok {
		return &e, true
	}
	return nil, false
}

func NewDoubleVoteErrorf(firstVote, conflictingVote *Vote, msg string, args ...interface{}) error {
	return DoubleVoteError{
		FirstVote:       firstVote,
		ConflictingVote: conflictingVote,
		err:             fmt.Errorf(msg, args...),
	}
}

// DoubleTimeoutError indicates that a validator has produced two semantically
// different timeouts for the same round.
type DoubleTimeoutError struct {
	FirstTimeout       *TimeoutObject
	ConflictingTimeout *TimeoutObject
	err                error
}

func (e DoubleTimeoutError) Error() string { return e.err.Error() }
func (e DoubleTimeoutError) Unwrap() error { return e.err }

// IsDoubleTimeoutError returns whether an error is DoubleTimeoutError
func IsDoubleTimeoutError(err error) bool {
	var e DoubleTimeoutError
	return errors.As(err, &e)
}

func NewDoubleTimeoutErrorf(firstTimeout, conflictingTimeout *TimeoutObject, msg string, args ...interface{}) error {
	return DoubleTimeoutError{
		FirstTimeout:       firstTimeout,
		ConflictingTimeout: conflictingTimeout,
		err:                fmt.Errorf(msg, args...),
	}
}

// DuplicatedSignerError indicates that a signature from the same node ID has
// already been added to an aggregation.
type DuplicatedSignerError struct {
	err error
}

func NewDuplicatedSignerErrorf(msg string, args ...interface{}) error {
	return DuplicatedSignerError{err: fmt.Errorf(msg, args...)}
}

func (e DuplicatedSignerError) Error() string { return e.err.Error() }
func (e DuplicatedSignerError) Unwrap() error { return e.err }

// IsDuplicatedSignerError returns whether err is a DuplicatedSignerError
func IsDuplicatedSignerError(err error) bool {
	var e DuplicatedSignerError
	return errors.As(err, &e)
}

// InvalidSignatureIncludedError indicates that signatures included via
// TrustedAdd are invalid.
type InvalidSignatureIncludedError struct {
	err error
}

func NewInvalidSignatureIncludedErrorf(msg string, args ...interface{}) error {
	return InvalidSignatureIncludedError{fmt.Errorf(msg, args...)}
}

func (e InvalidSignatureIncludedError) Error() string { return e.err.Error() }
func (e InvalidSignatureIncludedError) Unwrap() error { return e.err }

// IsInvalidSignatureIncludedError returns whether err is an InvalidSignatureIncludedError
func IsInvalidSignatureIncludedError(err error) bool {
	var e InvalidSignatureIncludedError
	return errors.As(err, &e)
}

// InsufficientSignaturesError indicates that not enough signatures have been
// collected to complete the operation.
type InsufficientSignaturesError struct {
	err error
}

func NewInsufficientSignaturesErrorf(msg string, args ...interface{}) error {
	return InsufficientSignaturesError{fmt.Errorf(msg, args...)}
}

func (e InsufficientSignaturesError) Error() string { return e.err.Error() }
func (e InsufficientSignaturesError) Unwrap() error { return e.err }

// IsInsufficientSignaturesError returns whether err is an InsufficientSignaturesError
func IsInsufficientSignaturesError(err error) bool {
	var e InsufficientSignaturesError
	return errors.As(err, &e)
}

// InvalidSignerError indicates that the signer is not part of the committee
// for the respective epoch.
type InvalidSignerError struct {
	err error
}

func NewInvalidSignerErrorf(msg string, args ...interface{}) error {
	return InvalidSignerError{err: fmt.Errorf(msg, args...)}
}

func (e InvalidSignerError) Error() string { return e.err.Error() }
func (e InvalidSignerError) Unwrap() error { return e.err }

// IsInvalidSignerError returns whether err is an InvalidSignerError
func IsInvalidSignerError(err error) bool {
	var e InvalidSignerError
	return errors.As(err, &e)
}

// ByzantineThresholdExceededError is raised if the engine detects conditions
// which prove more than f (by weight) Byzantine validators, e.g. two valid
// QCs certifying conflicting blocks in the same round. Continuing is not
// safe; the node fail-stops.
type ByzantineThresholdExceededError struct {
	Evidence string
}

func (e ByzantineThresholdExceededError) Error() string {
	return e.Evidence
}

// IsByzantineThresholdExceededError returns whether err is a ByzantineThresholdExceededError
func IsByzantineThresholdExceededError(err error) bool {
	var e ByzantineThresholdExceededError
	return errors.As(err, &e)
}
