package data

type OperationKind string

const (
	OpInstall   OperationKind = "install"
	OpRemove    OperationKind = "remove"
	OpChange    OperationKind = "change"
	OpReinstall OperationKind = "reinstall"
)

// Operation is a single step of a Transaction. Old is set for remove, change
// and reinstall, New for install, change and reinstall.
type Operation struct {
	Kind OperationKind
	Old  *PrefixRecord
	New  *RepoDataRecord
}

// Transaction is the set of operations that turn the current content of a
// prefix into the desired one.
type Transaction struct {
	Operations []*Operation
}

func (t *Transaction) Installed() []*RepoDataRecord {
	var out []*RepoDataRecord

	for _, op := range t.Operations {
		if op.New != nil {
			out = append(out, op.New)
		}
	}

	return out
}

func (t *Transaction) Removed() []*PrefixRecord {
	var out []*PrefixRecord

	for _, op := range t.Operations {
		if op.Old != nil {
			out = append(out, op.Old)
		}
	}

	return out
}
