package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/golang/glog"
)

// IHub is the page hub served under /ws.
type IHub interface {
	http.Handler
	Run(ctx context.Context, stopDoneNotifyC chan<- struct{})
	Online()
	Offline()
}

type Conf struct {
	Addr string
	Hub  IHub
	Mux  *http.ServeMux
}

// Server runs the http mux and the page hub until its context is done.
type Server struct {
	conf       *Conf
	httpServer *http.Server
}

func New(conf *Conf) *Server {
	return &Server{
		conf:       conf,
		httpServer: &http.Server{Handler: conf.Mux},
	}
}

// Listen binds the address so that startup errors surface before Run.
func (s *Server) Listen() (net.Listener, error) {
	lis, err := net.Listen("tcp", s.conf.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s error: %v", s.conf.Addr, err)
	}
	return lis, nil
}

func (s *Server) Run(ctx context.Context, lis net.Listener, stopNotifyCh chan<- struct{}) {
	glog.Infof("server is starting")

	go func() {
		glog.Infof("http server is listening %v", lis.Addr())
		if err := s.httpServer.Serve(lis); errors.Is(err, http.ErrServerClosed) {
			glog.Infof("http server closed")
		} else if err != nil {
			err := fmt.Errorf("error serve http mux server: %v", err)
			glog.Error(err)
			panic(err)
		}
	}()

	hubStopDoneC := make(chan struct{})

	defer func() {
		s.httpServer.Shutdown(context.Background())
		glog.Infof("server: http server shutdown done")

		<-hubStopDoneC
		close(hubStopDoneC)
		glog.Infof("server: hub stopped")

		glog.Infof("server: stopped")
		stopNotifyCh <- struct{}{}
	}()

	go s.conf.Hub.Run(ctx, hubStopDoneC)
	s.conf.Hub.Online()

	<-ctx.Done()
	s.conf.Hub.Offline()
	glog.Infof("server is stopping")
}
