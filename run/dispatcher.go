package run

import (
	"fmt"

	"github.com/ethereum-optimism/infra/op-suiterelay/artifacts"
	"github.com/ethereum-optimism/infra/op-suiterelay/protocol"
)

// ArtifactSource supplies the ordered artifacts of a run
type ArtifactSource interface {
	Len() int
	Artifact(i int) (artifacts.Artifact, bool)
	AuxData() artifacts.AuxDataSet
}

var _ ArtifactSource = (*artifacts.Store)(nil)

// Dispatcher pushes artifacts to the agent connection
type Dispatcher struct {
	source  ArtifactSource
	auxData map[string]protocol.AuxData
	legacy  bool
}

// NewDispatcher creates a dispatcher. With legacy set, pushes use the legacy
// event and key names.
func NewDispatcher(source ArtifactSource, legacy bool) *Dispatcher {
	var aux map[string]protocol.AuxData
	if set := source.AuxData(); len(set) > 0 {
		aux = make(map[string]protocol.AuxData, len(set))
		for name, d := range set {
			aux[name] = protocol.AuxData{Content: d.Content, Kind: d.Kind}
		}
	}
	return &Dispatcher{
		source:  source,
		auxData: aux,
		legacy:  legacy,
	}
}

// DispatchNext pushes the artifact at index as a single message. Index 0 is
// always sent; any later index is only sent once the prior suite is done.
// It returns false without error when nothing was sent.
func (d *Dispatcher) DispatchNext(conn protocol.Conn, index int, priorDone bool) (bool, error) {
	if index == 0 {
		priorDone = true
	}
	if !priorDone {
		return false, nil
	}

	artifact, ok := d.source.Artifact(index)
	if !ok {
		return false, nil
	}

	push := protocol.ArtifactPush{Data: artifact.Content}
	if artifact.HasAuxData {
		push.AuxData = d.auxData
	}

	msg, err := protocol.EncodeArtifactPush(push, d.legacy)
	if err != nil {
		return false, err
	}
	if err := conn.Send(msg); err != nil {
		return false, fmt.Errorf("failed to push artifact %d (%s): %w", index, artifact.Name, err)
	}
	return true, nil
}
