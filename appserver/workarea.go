/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"os"
)

// makeWorkArea allocates a unique per-application directory under root
// to hold exec.py and the _stdout/_stderr stream files.
func makeWorkArea(root string) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", err
	}
	return os.MkdirTemp(root, "app-")
}
