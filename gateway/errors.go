package gateway

import "github.com/GuillaumeDelaporte/oio-sds/cmn"

func errBadPath(msg string) error {
	return cmn.ErrBadRequest("gateway: %s", msg)
}
