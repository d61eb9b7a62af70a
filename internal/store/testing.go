package store

// OpenTest opens and migrates a fresh SQLite database at path, for use
// by other packages' tests (playermgr/matchmaking/gamemanager/...) that need a
// real store without duplicating migration bootstrapping.
func OpenTest(path string) (*Store, error) {
	if err := RunMigrations(path); err != nil {
		return nil, err
	}
	return Connect(path)
}
