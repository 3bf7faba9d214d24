package main

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/relationalcore/engine/config"
	"github.com/relationalcore/engine/storage/page"
	"github.com/relationalcore/engine/table"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("Storage Engine Demo: B+ Tree Table with 2PL")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println()
	fmt.Println("This demo walks through the core engine end to end:")
	fmt.Println("  • Disk Manager + Buffer Pool: fixed-size pages, LRU-replaced frames")
	fmt.Println("  • B+ Tree: point lookup, in-place update, range scan")
	fmt.Println("  • Transaction + Lock Manager: Shared/Exclusive 2PL, lock upgrade")
	fmt.Println()

	dir, err := os.MkdirTemp("", "engine-demo-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.DataFile = dir + "/demo.db"
	cfg.PayloadSize = 16

	tbl, err := table.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer tbl.Close()

	fmt.Println("✓ Opened table at", cfg.DataFile)

	demoCRUD(tbl)
	fmt.Println()
	demoRangeScan(tbl)
	fmt.Println()
	demoLockUpgrade(tbl)
	fmt.Println()
	demoWriteReadConflict(tbl)
}

func payload(tag byte, id uint32) []byte {
	p := make([]byte, 16)
	p[0] = tag
	p[1] = byte(id)
	p[2] = byte(id >> 8)
	return p
}

func demoCRUD(tbl *table.Table) {
	fmt.Println("### Insert / Scan / Update / Delete ###")
	fmt.Println(strings.Repeat("-", 40))

	tx := tbl.Begin()
	for _, id := range []uint32{100, 101, 102, 103} {
		if err := tbl.Insert(tx, page.Row{ID: id, Payload: payload('a', id)}); err != nil {
			log.Printf("insert %d: %v", id, err)
		}
	}
	if err := tbl.Commit(tx); err != nil {
		log.Fatal(err)
	}
	fmt.Println("  INSERT 100, 101, 102, 103 (committed)")

	rtx := tbl.Begin()
	row, err := tbl.Scan(rtx, 101)
	if err != nil {
		log.Printf("scan 101: %v", err)
	} else {
		fmt.Printf("  SCAN 101 -> %v\n", row.Payload)
	}
	tbl.Commit(rtx)

	utx := tbl.Begin()
	if err := tbl.Update(utx, 101, page.Row{ID: 101, Payload: payload('b', 101)}); err != nil {
		log.Printf("update 101: %v", err)
	}
	tbl.Commit(utx)
	fmt.Println("  UPDATE 101 (in place, no split/merge)")

	dtx := tbl.Begin()
	if err := tbl.Delete(dtx, 103); err != nil {
		log.Printf("delete 103: %v", err)
	}
	tbl.Commit(dtx)
	fmt.Println("  DELETE 103")

	vtx := tbl.Begin()
	if _, err := tbl.Scan(vtx, 103); err != nil {
		fmt.Println("  SCAN 103 -> not found (as expected)")
	}
	tbl.Commit(vtx)

	fmt.Printf("  index stats: %+v\n", tbl.Stats())
}

func demoRangeScan(tbl *table.Table) {
	fmt.Println("### Range Scan (ascending key order) ###")
	fmt.Println(strings.Repeat("-", 40))

	tx := tbl.Begin()
	for _, id := range []uint32{210, 205, 208, 201, 209} {
		tbl.Insert(tx, page.Row{ID: id, Payload: payload('c', id)})
	}
	tbl.Commit(tx)

	it, err := tbl.RangeScan(200)
	if err != nil {
		log.Fatal(err)
	}
	defer it.Close()

	for it.Next() {
		fmt.Printf("  %d -> %v\n", it.Key(), it.Payload())
	}
}

func demoLockUpgrade(tbl *table.Table) {
	fmt.Println("### Lock Upgrade (Shared -> Exclusive in place) ###")
	fmt.Println(strings.Repeat("-", 40))

	seed := tbl.Begin()
	tbl.Insert(seed, page.Row{ID: 300, Payload: payload('d', 300)})
	tbl.Commit(seed)

	tx := tbl.Begin()
	if _, err := tbl.Scan(tx, 300); err != nil {
		log.Fatal(err)
	}
	fmt.Println("  txn holds Shared lock on key 300 after Scan")

	if err := tbl.Update(tx, 300, page.Row{ID: 300, Payload: payload('e', 300)}); err != nil {
		log.Printf("upgrade failed: %v", err)
	} else {
		fmt.Println("  Update upgraded the held Shared lock to Exclusive and wrote in place")
	}
	tbl.Commit(tx)
}

func demoWriteReadConflict(tbl *table.Table) {
	fmt.Println("### 2PL Write-Read Conflict ###")
	fmt.Println(strings.Repeat("-", 40))

	seed := tbl.Begin()
	tbl.Insert(seed, page.Row{ID: 400, Payload: payload('f', 400)})
	tbl.Commit(seed)

	writer := tbl.Begin()
	if err := tbl.Update(writer, 400, page.Row{ID: 400, Payload: payload('g', 400)}); err != nil {
		log.Fatal(err)
	}
	fmt.Println("  writer txn holds Exclusive lock on key 400")

	done := make(chan struct{})
	go func() {
		reader := tbl.Begin()
		fmt.Println("  reader txn blocks on Scan(400) until the writer commits")
		tbl.Scan(reader, 400)
		fmt.Println("  reader txn unblocked")
		tbl.Commit(reader)
		close(done)
	}()

	// Give the reader time to reach its blocked Scan before committing.
	time.Sleep(100 * time.Millisecond)
	fmt.Println("  writer committing...")
	tbl.Commit(writer)
	<-done
}
