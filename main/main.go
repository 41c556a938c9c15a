package main

import (
	"flag"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/rmdb"
	"github.com/Kyooooma/RMDB/server"
)

func main() {
	configPath := flag.String("config", "rmdb.ini", "path of the configuration file")
	flag.Parse()

	cfg := server.LoadConfig(*configPath)
	db, err := rmdb.NewRMDB(cfg.DbName, cfg.PoolSize)
	if err != nil {
		common.Logger.WithError(err).Fatal("open database failed")
	}

	srv := server.NewServer(db, cfg)
	if err := srv.Run(); err != nil {
		common.Logger.WithError(err).Fatal("server stopped")
	}
}
