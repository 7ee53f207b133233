// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package topology

import (
	"fmt"

	"go.mongodb.org/mongo-go-driver-core/x/mongo/driver/description"
)

// ServerSelectionError reports that no server satisfied a selector
// before the selection timeout elapsed.
type ServerSelectionError struct {
	Wrapped error
	Topology description.Topology
}

func (e ServerSelectionError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("server selection error: %s", e.Wrapped)
	}
	return fmt.Sprintf("server selection timed out: no server of topology kind %s matched the selector", e.Topology.Kind)
}

func (e ServerSelectionError) Unwrap() error { return e.Wrapped }
