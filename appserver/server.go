/*
 * Copyright (c) 2014, Yutaro Iiyama. All rights reserved.
 */
package appserver

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yiiyama/ddm/3rdparty/glog"
	"github.com/yiiyama/ddm/cmn"
	"github.com/yiiyama/ddm/console"
)

// Server is the mutual-TLS application server: one accept loop
// dispatching each connection to its own goroutine, matching the
// teacher's one-goroutine-per-unit-of-work idiom (e.g. reb's
// jogger-per-path pattern) rather than a worker pool.
type Server struct {
	cfg          cmn.AppServerConfig
	workAreaRoot string
	interpreter  string
	master       Master

	listener net.Listener
	stopOnce sync.Once
}

func NewServer(cfg cmn.AppServerConfig, workAreaRoot, interpreter string, master Master) *Server {
	return &Server{cfg: cfg, workAreaRoot: workAreaRoot, interpreter: interpreter, master: master}
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	switch {
	case s.cfg.CAFile != "":
		pem, err := os.ReadFile(s.cfg.CAFile)
		if err != nil {
			return nil, err
		}
		pool.AppendCertsFromPEM(pem)
	case s.cfg.CAPath != "":
		entries, err := os.ReadDir(s.cfg.CAPath)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			pem, err := os.ReadFile(filepath.Join(s.cfg.CAPath, e.Name()))
			if err != nil {
				continue
			}
			pool.AppendCertsFromPEM(pem)
		}
	}

	// AllowProxyCerts is carried through cmn.AppServerConfig for parity with
	// the original's proxy-cert allowance, but crypto/tls has no native
	// RFC 3820 proxy-certificate support: accepting one would require a
	// custom chain verifier this module does not implement, so the flag
	// has no effect here.

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
	}, nil
}

func (s *Server) Start() error {
	tlsCfg, err := s.tlsConfig()
	if err != nil {
		return err
	}

	listener, err := tls.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port), tlsCfg)
	if err != nil {
		return err
	}
	s.listener = listener

	go s.acceptLoop()
	return nil
}

// Stop shuts down the listening socket; in-flight handlers run to
// completion.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}
	})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			glog.FastV(2, glog.SmoduleAppServer).Infof("accept loop exiting: %v", err)
			return
		}
		go s.processApplication(conn)
	}
}

func (s *Server) processApplication(netConn net.Conn) {
	defer netConn.Close()

	io := NewConn(netConn)

	tlsConn, ok := netConn.(*tls.Conn)
	if !ok {
		io.Send("failed", "not a TLS connection")
		return
	}
	state := tlsConn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		io.Send("failed", "no peer certificate")
		return
	}
	cert := state.PeerCertificates[0]

	user, _, err := identifyPeer(cert.Subject, cert.Issuer, s.master)
	if err != nil {
		io.Send("failed", err.Error())
		return
	}

	var appData map[string]interface{}
	if err := io.Recv(&appData); err != nil {
		io.Send("failed", "Ill-formatted data")
		return
	}

	service, _ := appData["service"].(string)
	if !s.master.AuthorizeUser(user, service) {
		io.Send("failed", fmt.Sprintf("Unauthorized user/service %s/%s", user, service))
		return
	}

	command, _ := appData["command"].(string)

	switch command {
	case "poll", "kill":
		s.actOnApp(command, appData, io)

	case "submit":
		workarea, ok := s.resolveWorkArea(appData, io)
		if !ok {
			return
		}
		s.submitApp(user, workarea, appData, io)

	case "interact":
		workarea, ok := s.resolveWorkArea(appData, io)
		if !ok {
			return
		}
		s.interact(workarea, io)
		if _, explicit := appData["path"]; !explicit {
			os.RemoveAll(workarea)
		}

	default:
		io.Send("failed", fmt.Sprintf("unknown command %q", command))
	}
}

func (s *Server) resolveWorkArea(appData map[string]interface{}, io *Conn) (string, bool) {
	if p, ok := appData["path"].(string); ok && p != "" {
		return p, true
	}
	workarea, err := makeWorkArea(s.workAreaRoot)
	if err != nil {
		io.Send("failed", "Failed to create work area")
		return "", false
	}
	return workarea, true
}

func (s *Server) actOnApp(command string, appData map[string]interface{}, io *Conn) {
	appIDFloat, ok := appData["appid"].(float64)
	if !ok {
		io.Send("failed", "Missing appid")
		return
	}
	appID := int64(appIDFloat)

	if command == "kill" {
		app, killed, found := s.master.Kill(appID)
		if !found {
			io.Send("failed", fmt.Sprintf("Unknown appid %d", appID))
			return
		}
		if killed {
			io.Send("OK", "Task aborted.")
			return
		}
		exitCode := "None"
		if app.ExitCode != nil {
			exitCode = fmt.Sprintf("%d", *app.ExitCode)
		}
		io.Send("OK", fmt.Sprintf("Task already completed with status %s (exit code %s).", app.Status, exitCode))
		return
	}

	app, found := s.master.GetApplication(appID)
	if !found {
		io.Send("failed", fmt.Sprintf("Unknown appid %d", appID))
		return
	}
	io.Send("OK", app)
}

func (s *Server) submitApp(user, workarea string, appData map[string]interface{}, io *Conn) {
	for _, key := range []string{"title", "args", "write_request"} {
		if _, ok := appData[key]; !ok {
			io.Send("failed", "Missing "+key)
			return
		}
	}

	if execPath, ok := appData["exec_path"].(string); ok && execPath != "" {
		src, err := os.ReadFile(execPath)
		if err != nil {
			io.Send("failed", fmt.Sprintf("Could not copy %s", workarea))
			return
		}
		if err := os.WriteFile(filepath.Join(workarea, "exec.py"), src, 0644); err != nil {
			io.Send("failed", fmt.Sprintf("Could not copy %s", workarea))
			return
		}
	} else if execSrc, ok := appData["exec"].(string); ok {
		if err := os.WriteFile(filepath.Join(workarea, "exec.py"), []byte(execSrc), 0644); err != nil {
			io.Send("failed", fmt.Sprintf("Could not write %s", workarea))
			return
		}
	} else {
		io.Send("failed", "Missing exec or exec_path")
		return
	}

	title, _ := appData["title"].(string)
	args, _ := appData["args"].(string)
	writeRequest, _ := appData["write_request"].(bool)
	mode, _ := appData["mode"].(string)
	if mode == "" {
		mode = "asynch"
	}

	app := &Application{
		Title:        title,
		Args:         args,
		WriteRequest: writeRequest,
		Path:         workarea,
		User:         user,
	}
	if err := s.master.ScheduleApp(app); err != nil {
		io.Send("failed", err.Error())
		return
	}

	if mode != "synch" {
		io.Send("OK", map[string]interface{}{"appid": app.ID, "path": workarea})
		return
	}

	running := s.master.AwaitRun(app.ID)
	if running.Status != AppRun {
		io.Send("failed", map[string]interface{}{"status": running.Status.String()})
		return
	}

	io.Send("OK", map[string]interface{}{"appid": app.ID, "path": workarea})

	var addr struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if err := io.Recv(&addr); err != nil {
		return
	}

	result := s.serveSynchApp(app.ID, workarea, addr.Host, addr.Port)
	io.Send("OK", result)
}

// serveSynchApp tails the work area's stdout/stderr files to two
// outbound sockets while the application runs, then polls the master
// for a terminal status once AwaitExit returns.
func (s *Server) serveSynchApp(appID int64, workarea, host string, port int) map[string]interface{} {
	stop := make(chan struct{})
	var wg sync.WaitGroup

	for _, name := range []string{"stdout", "stderr"} {
		conn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", host, port))
		if err != nil {
			glog.FastV(2, glog.SmoduleAppServer).Warningf("failed to open %s tail socket: %v", name, err)
			continue
		}
		wg.Add(1)
		go func(conn net.Conn, streamName string) {
			defer wg.Done()
			defer conn.Close()
			tailFollow(filepath.Join(workarea, "_"+streamName), conn, stop)
		}(conn, name)
	}

	s.master.AwaitExit(appID)
	close(stop)
	wg.Wait()

	for {
		app, found := s.master.GetApplication(appID)
		if !found {
			return map[string]interface{}{"status": "unknown", "exit_code": nil}
		}
		if app.Status.active() {
			time.Sleep(1 * time.Second)
			continue
		}

		var exitCode interface{}
		if app.ExitCode != nil {
			exitCode = *app.ExitCode
		}
		return map[string]interface{}{"status": app.Status.String(), "exit_code": exitCode}
	}
}

func (s *Server) interact(workarea string, io *Conn) {
	io.Send("OK", "")

	var addr struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if err := io.Recv(&addr); err != nil {
		return
	}

	outConn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	if err != nil {
		return
	}
	defer outConn.Close()

	errConn, err := net.Dial("tcp", fmt.Sprintf("%s:%d", addr.Host, addr.Port))
	if err != nil {
		return
	}
	defer errConn.Close()

	if err := console.RunInteractive(workarea, s.interpreter, outConn, errConn); err != nil {
		glog.FastV(2, glog.SmoduleConsole).Infof("interactive session in %s exited: %v", workarea, err)
	}
}
