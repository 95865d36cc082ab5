package ledger

// contractABI is the subset of the ChessBetting contract this service calls or watches.
const contractABI = `[
  {"type":"function","name":"getBet","stateMutability":"view",
   "inputs":[{"name":"_betId","type":"uint256"}],
   "outputs":[
     {"name":"player1","type":"address"},
     {"name":"player2","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"winner","type":"address"},
     {"name":"status","type":"uint8"},
     {"name":"result","type":"uint8"},
     {"name":"createdAt","type":"uint256"},
     {"name":"completedAt","type":"uint256"},
     {"name":"gameHash","type":"bytes32"}]},
  {"type":"function","name":"declareWinner","stateMutability":"nonpayable",
   "inputs":[{"name":"_betId","type":"uint256"},{"name":"_winner","type":"address"}],"outputs":[]},
  {"type":"function","name":"declareDraw","stateMutability":"nonpayable",
   "inputs":[{"name":"_betId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"getPlayerStats","stateMutability":"view",
   "inputs":[{"name":"_player","type":"address"}],
   "outputs":[
     {"name":"wins","type":"uint256"},
     {"name":"losses","type":"uint256"},
     {"name":"draws","type":"uint256"},
     {"name":"totalGames","type":"uint256"}]},
  {"type":"function","name":"betCounter","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getActiveBetsCount","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isBetExpired","stateMutability":"view",
   "inputs":[{"name":"_betId","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"event","name":"BetCreated","anonymous":false,"inputs":[
     {"name":"betId","type":"uint256","indexed":true},
     {"name":"creator","type":"address","indexed":true},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"gameHash","type":"bytes32","indexed":false}]},
  {"type":"event","name":"BetJoined","anonymous":false,"inputs":[
     {"name":"betId","type":"uint256","indexed":true},
     {"name":"joiner","type":"address","indexed":true},
     {"name":"totalPool","type":"uint256","indexed":false}]},
  {"type":"event","name":"BetCompleted","anonymous":false,"inputs":[
     {"name":"betId","type":"uint256","indexed":true},
     {"name":"winner","type":"address","indexed":true},
     {"name":"payout","type":"uint256","indexed":false},
     {"name":"result","type":"uint8","indexed":false}]},
  {"type":"event","name":"DrawDeclared","anonymous":false,"inputs":[
     {"name":"betId","type":"uint256","indexed":true},
     {"name":"refundAmount","type":"uint256","indexed":false}]},
  {"type":"event","name":"BetCancelled","anonymous":false,"inputs":[
     {"name":"betId","type":"uint256","indexed":true},
     {"name":"canceller","type":"address","indexed":true},
     {"name":"refundAmount","type":"uint256","indexed":false}]}
]`
