package crac

import "errors"

var (
	ErrInvalidInstant           = errors.New("invalid instant")
	ErrUnknownInstant           = errors.New("instant not registered in catalogue")
	ErrContingencyExists        = errors.New("contingency already exists")
	ErrContingencyNotFound      = errors.New("contingency not found")
	ErrContingencyInUse         = errors.New("contingency is referenced by states")
	ErrCnecExists               = errors.New("cnec already exists")
	ErrCnecNotFound             = errors.New("cnec not found")
	ErrCnecBadInput             = errors.New("invalid cnec")
	ErrCnecInUse                = errors.New("cnec is referenced by usage rules")
	ErrRemedialActionExists     = errors.New("remedial action already exists")
	ErrRemedialActionNotFound   = errors.New("remedial action not found")
	ErrRemedialActionBadInput   = errors.New("invalid remedial action")
	ErrInvalidUsageRule         = errors.New("invalid usage rule")
	ErrUnknownReference         = errors.New("usage rule references unknown entity")
	ErrInconsistentAlignedGroup = errors.New("inconsistent aligned range action group")
)
